package observe

import "testing"

func TestDispatchSetsBlock2MoreBit(t *testing.T) {
	tl := newFakeTransactionLayer(0)
	e := NewEngine(testConfig(), tl, &fakeTimer{})
	e.ObserveInit("/s", &echoHandler{payload: []byte("chunk"), newOffset: 64})

	e.AddSubscriber(fakeEndpoint("c1"), NewToken([]byte{1}), "/s")
	e.NotifyObservers(fakeResource{url: "/s"})

	h, _ := e.reg.PendingHead()
	e.mu.Lock()
	e.dispatchOneLocked(h)
	e.mu.Unlock()

	sent := tl.txs[0].sent[0]
	if sent.Block2 == nil || !sent.Block2.More {
		t.Fatalf("expected Block2 with More=true, got %+v", sent.Block2)
	}
}

func TestDispatchLastBlockSentinelSetsBlock2WithoutMore(t *testing.T) {
	// newOffset == -1 is the handler's "this was the last block" sentinel.
	// The original firmware's Block2 construction treats it the same as
	// "no more blocks" for the purpose of the More bit (see DESIGN.md).
	tl := newFakeTransactionLayer(0)
	e := NewEngine(testConfig(), tl, &fakeTimer{})
	e.ObserveInit("/s", &echoHandler{payload: []byte("tail"), newOffset: -1})

	e.AddSubscriber(fakeEndpoint("c1"), NewToken([]byte{1}), "/s")
	e.NotifyObservers(fakeResource{url: "/s"})

	h, _ := e.reg.PendingHead()
	e.mu.Lock()
	e.dispatchOneLocked(h)
	e.mu.Unlock()

	sent := tl.txs[0].sent[0]
	if sent.Block2 == nil || sent.Block2.More {
		t.Fatalf("expected Block2 with More=false, got %+v", sent.Block2)
	}
}

func TestDispatchNoBlock2WhenWholeRepresentationFits(t *testing.T) {
	tl := newFakeTransactionLayer(0)
	e := NewEngine(testConfig(), tl, &fakeTimer{})
	e.ObserveInit("/s", &echoHandler{payload: []byte("small"), newOffset: 0})

	e.AddSubscriber(fakeEndpoint("c1"), NewToken([]byte{1}), "/s")
	e.NotifyObservers(fakeResource{url: "/s"})

	h, _ := e.reg.PendingHead()
	e.mu.Lock()
	e.dispatchOneLocked(h)
	e.mu.Unlock()

	sent := tl.txs[0].sent[0]
	if sent.Block2 != nil {
		t.Fatalf("expected no Block2, got %+v", sent.Block2)
	}
}

func TestDispatchHandlerFailureSendsBadRequest(t *testing.T) {
	tl := newFakeTransactionLayer(0)
	e := NewEngine(testConfig(), tl, &fakeTimer{})
	e.ObserveInit("/s", &echoHandler{fail: true})

	e.AddSubscriber(fakeEndpoint("c1"), NewToken([]byte{1}), "/s")
	e.NotifyObservers(fakeResource{url: "/s"})

	h, _ := e.reg.PendingHead()
	e.mu.Lock()
	e.dispatchOneLocked(h)
	e.mu.Unlock()

	sent := tl.txs[0].sent[0]
	if sent.Code != CodeBadRequest {
		t.Fatalf("got code %v, want CodeBadRequest", sent.Code)
	}
}

func TestObsCounterWrapsAt24Bits(t *testing.T) {
	e := NewEngine(testConfig(), newFakeTransactionLayer(0), &fakeTimer{})
	h, _ := e.AddSubscriber(fakeEndpoint("c1"), NewToken([]byte{1}), "/s")
	sub, _ := e.reg.Get(h)
	sub.obsCounter.Store(0xFFFFFF)

	got := sub.nextObsCounter()
	if got != 0xFFFFFF {
		t.Fatalf("nextObsCounter pre-increment value: got %#x want %#x", got, 0xFFFFFF)
	}
	if sub.ObsCounter() != 0 {
		t.Fatalf("ObsCounter after wraparound: got %#x want 0", sub.ObsCounter())
	}
}
