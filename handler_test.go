package observe

import "testing"

func TestObserveHandlerRegisterAndDeregister(t *testing.T) {
	e := NewEngine(testConfig(), newFakeTransactionLayer(0), &fakeTimer{})
	obs0 := uint32(0)
	req := &Request{
		Path:           "/s",
		Token:          NewToken([]byte{0x01}),
		Observe:        &obs0,
		SourceEndpoint: fakeEndpoint("c1"),
	}

	val, err := e.ObserveHandler(req)
	if err != nil || val == nil || *val != 0 {
		t.Fatalf("register: val=%v err=%v", val, err)
	}
	if e.Stats().Unactive != 1 {
		t.Fatalf("Stats after register: got %+v", e.Stats())
	}

	obs1 := uint32(1)
	req.Observe = &obs1
	val, err = e.ObserveHandler(req)
	if err != nil || val != nil {
		t.Fatalf("deregister: val=%v err=%v", val, err)
	}
	if e.Stats().Unactive != 0 {
		t.Fatalf("Stats after deregister: got %+v", e.Stats())
	}
}

func TestObserveHandlerMissingEndpoint(t *testing.T) {
	e := NewEngine(testConfig(), newFakeTransactionLayer(0), &fakeTimer{})
	obs0 := uint32(0)
	req := &Request{Path: "/s", Token: NewToken([]byte{1}), Observe: &obs0}
	if _, err := e.ObserveHandler(req); err != ErrMissingEndpoint {
		t.Fatalf("got err %v, want ErrMissingEndpoint", err)
	}
}

func TestObserveHandlerPoolExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxObservers = 1
	e := NewEngine(cfg, newFakeTransactionLayer(0), &fakeTimer{})
	obs0 := uint32(0)

	first := &Request{Path: "/s", Token: NewToken([]byte{1}), Observe: &obs0, SourceEndpoint: fakeEndpoint("c1")}
	if _, err := e.ObserveHandler(first); err != nil {
		t.Fatalf("first register: %v", err)
	}

	second := &Request{Path: "/t", Token: NewToken([]byte{2}), Observe: &obs0, SourceEndpoint: fakeEndpoint("c2")}
	if _, err := e.ObserveHandler(second); err != ErrPoolExhausted {
		t.Fatalf("second register: got err %v, want ErrPoolExhausted", err)
	}
}

func TestObserveHandlerReregistrationResetsCounter(t *testing.T) {
	e := NewEngine(testConfig(), newFakeTransactionLayer(0), &fakeTimer{})
	obs0 := uint32(0)
	req := &Request{Path: "/s", Token: NewToken([]byte{1}), Observe: &obs0, SourceEndpoint: fakeEndpoint("c1")}

	if _, err := e.ObserveHandler(req); err != nil {
		t.Fatalf("register: %v", err)
	}
	handles := e.reg.FindAll(nil)
	if len(handles) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(handles))
	}
	sub, _ := e.reg.Get(handles[0])
	sub.obsCounter.Store(7)

	if _, err := e.ObserveHandler(req); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if n := e.Stats().Unactive; n != 1 {
		t.Fatalf("expected re-registration to coalesce, got %d subscribers", n)
	}
	handles = e.reg.FindAll(nil)
	sub, _ = e.reg.Get(handles[0])
	// AddSubscriber resets the fresh subscriber's counter to 0, then
	// ObserveHandler attaches that 0 and advances it, so the *stored*
	// counter after re-registration is 1: the next engine-driven
	// notification must not repeat the value already sent in this response.
	if got := sub.ObsCounter(); got != 1 {
		t.Errorf("ObsCounter after re-registration: got %d want 1", got)
	}
}

func TestObserveHandlerDuplicateURISupersedes(t *testing.T) {
	e := NewEngine(testConfig(), newFakeTransactionLayer(0), &fakeTimer{})
	obs0 := uint32(0)
	ep := fakeEndpoint("c1")

	first := &Request{Path: "/a", Token: NewToken([]byte{0x01}), Observe: &obs0, SourceEndpoint: ep}
	if _, err := e.ObserveHandler(first); err != nil {
		t.Fatalf("first register: %v", err)
	}
	second := &Request{Path: "/a", Token: NewToken([]byte{0x02}), Observe: &obs0, SourceEndpoint: ep}
	if _, err := e.ObserveHandler(second); err != nil {
		t.Fatalf("second register: %v", err)
	}

	handles := e.reg.FindAll(nil)
	if len(handles) != 1 {
		t.Fatalf("expected exactly one surviving subscriber, got %d", len(handles))
	}
	sub, _ := e.reg.Get(handles[0])
	if !sub.Token.Equal(NewToken([]byte{0x02})) {
		t.Fatalf("expected surviving subscriber to carry the newer token, got %v", sub.Token)
	}
}

func TestObserveHandlerDeregisterIgnoresPath(t *testing.T) {
	// coap_remove_observer_by_token matches on (endpoint, token) alone; an
	// Observe=1 request's own Uri-Path plays no part in which subscription
	// gets removed.
	e := NewEngine(testConfig(), newFakeTransactionLayer(0), &fakeTimer{})
	obs0 := uint32(0)
	ep := fakeEndpoint("c1")
	tok := NewToken([]byte{0xAB})

	if _, err := e.ObserveHandler(&Request{Path: "/a", Token: tok, Observe: &obs0, SourceEndpoint: ep}); err != nil {
		t.Fatalf("register: %v", err)
	}

	obs1 := uint32(1)
	deregister := &Request{Path: "/totally/unrelated", Token: tok, Observe: &obs1, SourceEndpoint: ep}
	if _, err := e.ObserveHandler(deregister); err != nil {
		t.Fatalf("deregister: %v", err)
	}
	if n := e.Stats().Unactive; n != 0 {
		t.Fatalf("expected deregistration by token to ignore path, got %d subscribers left", n)
	}
}
