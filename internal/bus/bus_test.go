package bus

import (
	"sync"
	"testing"
	"time"
)

func TestSendDeliversToRecipientQueue(t *testing.T) {
	b := New()
	b.Send("planning", "coding", TaskCreated, map[string]interface{}{"id": "t1"}, Normal)

	msgs := b.GetMessages("coding", time.Time{}, nil, nil, 0)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Type != TaskCreated {
		t.Errorf("expected TASK_CREATED, got %s", msgs[0].Type)
	}
}

func TestBroadcastDeliversOnlyToSubscribers(t *testing.T) {
	b := New()
	b.Subscribe("qa", ObjectiveActivated)
	b.Subscribe("debugging") // subscribes to everything

	b.Broadcast("coordinator", ObjectiveActivated, nil, Normal)
	b.Broadcast("coordinator", SystemAlert, nil, Normal)

	qaMsgs := b.GetMessages("qa", time.Time{}, nil, nil, 0)
	if len(qaMsgs) != 1 {
		t.Fatalf("qa should only receive the subscribed type, got %d messages", len(qaMsgs))
	}

	debugMsgs := b.GetMessages("debugging", time.Time{}, nil, nil, 0)
	if len(debugMsgs) != 2 {
		t.Fatalf("debugging subscribed to everything should receive both, got %d", len(debugMsgs))
	}
}

func TestPriorityOrdering(t *testing.T) {
	b := New()
	b.Send("x", "coding", TaskCreated, nil, Low)
	b.Send("x", "coding", TaskCreated, nil, Critical)
	b.Send("x", "coding", TaskCreated, nil, Normal)

	msgs := b.GetMessages("coding", time.Time{}, nil, nil, 0)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Priority != Critical || msgs[1].Priority != Normal || msgs[2].Priority != Low {
		t.Errorf("expected Critical, Normal, Low order; got %v, %v, %v", msgs[0].Priority, msgs[1].Priority, msgs[2].Priority)
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	b := New()
	b.Send("x", "coding", TaskCreated, map[string]interface{}{"n": 1}, Normal)
	b.Send("x", "coding", TaskCreated, map[string]interface{}{"n": 2}, Normal)
	b.Send("x", "coding", TaskCreated, map[string]interface{}{"n": 3}, Normal)

	msgs := b.GetMessages("coding", time.Time{}, nil, nil, 0)
	for i, want := range []int{1, 2, 3} {
		if int(msgs[i].Payload["n"].(int)) != want {
			t.Errorf("message %d: expected n=%d, got %v", i, want, msgs[i].Payload["n"])
		}
	}
}

func TestRequestResponse(t *testing.T) {
	b := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			msgs := b.GetMessages("qa", time.Time{}, []MessageType{PhaseRequest}, nil, 1)
			if len(msgs) > 0 {
				b.Respond("qa", msgs[0], map[string]interface{}{"result": "ok"})
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	resp, ok := b.Request("debugging", "qa", PhaseRequest, nil, time.Second)
	wg.Wait()

	if !ok {
		t.Fatal("expected a response before timeout")
	}
	if resp.Payload["result"] != "ok" {
		t.Errorf("unexpected response payload: %v", resp.Payload)
	}
}

func TestRequestTimesOutWithoutResponse(t *testing.T) {
	b := New()
	_, ok := b.Request("debugging", "qa", PhaseRequest, nil, 10*time.Millisecond)
	if ok {
		t.Fatal("expected timeout when nobody responds")
	}
}

func TestOnMessageHandlerInvoked(t *testing.T) {
	b := New()
	var got Message
	var mu sync.Mutex
	done := make(chan struct{})

	b.OnMessage("qa", TaskCreated, func(m Message) {
		mu.Lock()
		got = m
		mu.Unlock()
		close(done)
	})

	b.Send("planning", "qa", TaskCreated, map[string]interface{}{"id": "t1"}, Normal)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if got.TaskID != "" {
		t.Errorf("unexpected task id on plain Send: %s", got.TaskID)
	}
}

func TestSearchFiltersByTaskID(t *testing.T) {
	b := New()
	b.Send("planning", "coding", TaskCreated, nil, Normal, WithTask("t1"))
	b.Send("planning", "coding", TaskCreated, nil, Normal, WithTask("t2"))

	results := b.Search(SearchFilter{TaskID: "t1"})
	if len(results) != 1 {
		t.Fatalf("expected 1 result for task t1, got %d", len(results))
	}
}

func TestRetentionExpiresOldMessages(t *testing.T) {
	b := New()
	b.SetRetention(DefaultMaxHistory, time.Millisecond)
	b.Send("planning", "coding", TaskCreated, nil, Normal)

	time.Sleep(5 * time.Millisecond)

	msgs := b.GetMessages("coding", time.Time{}, nil, nil, 0)
	if len(msgs) != 0 {
		t.Errorf("expected expired message to be gone, got %d", len(msgs))
	}
}

func TestRetentionCapsHistorySize(t *testing.T) {
	b := New()
	b.SetRetention(5, DefaultTTL)
	for i := 0; i < 10; i++ {
		b.Send("planning", "coding", TaskCreated, nil, Normal)
	}

	msgs := b.GetMessages("coding", time.Time{}, nil, nil, 0)
	if len(msgs) != 5 {
		t.Errorf("expected queue capped at 5, got %d", len(msgs))
	}
}
