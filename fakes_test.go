package observe

import "time"

// fakeEndpoint is a minimal Endpoint for tests: peers compare equal only if
// they share the same name.
type fakeEndpoint string

func (f fakeEndpoint) Equal(o Endpoint) bool {
	other, ok := o.(fakeEndpoint)
	return ok && f == other
}

func (f fakeEndpoint) String() string { return string(f) }

// fakeTimer is a Timer double that never fires on its own; tests call Fire
// to simulate the timer expiring, which lets OnTimerFire's scheduling logic
// be driven deterministically with no sleeping.
type fakeTimer struct {
	fn  func()
	set bool
}

func (f *fakeTimer) Arm(d time.Duration, fn func()) {
	f.fn = fn
	f.set = true
}

func (f *fakeTimer) Stop() {
	f.set = false
}

// Fire invokes the currently armed callback, if any, exactly once.
func (f *fakeTimer) Fire() {
	if !f.set {
		return
	}
	fn := f.fn
	f.set = false
	fn()
}

// fakeTransaction is a Transaction double that records every message sent
// to it and lets tests trigger ACK/timeout/abort completion explicitly.
type fakeTransaction struct {
	sent []OutboundMessage
	cb   func(TransactionOutcome)
}

func (t *fakeTransaction) SetCallback(cb func(TransactionOutcome)) {
	t.cb = cb
}

func (t *fakeTransaction) Send(msg OutboundMessage) error {
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransaction) complete(outcome TransactionOutcome) {
	if t.cb != nil {
		t.cb(outcome)
	}
}

// fakeTransactionLayer is a TransactionLayer double with a capacity limit,
// so tests can exercise ErrTransactionExhausted.
type fakeTransactionLayer struct {
	nextMID  uint16
	capacity int
	inFlight int
	txs      []*fakeTransaction
}

func newFakeTransactionLayer(capacity int) *fakeTransactionLayer {
	return &fakeTransactionLayer{capacity: capacity}
}

func (tl *fakeTransactionLayer) NextMID() uint16 {
	tl.nextMID++
	return tl.nextMID
}

func (tl *fakeTransactionLayer) NewTransaction(mid uint16, ep Endpoint) (Transaction, bool) {
	if tl.capacity > 0 && tl.inFlight >= tl.capacity {
		return nil, false
	}
	tl.inFlight++
	tx := &fakeTransaction{}
	tl.txs = append(tl.txs, tx)
	return tx, true
}

// echoHandler is a ResourceHandler double that writes a fixed payload and
// reports a fixed newOffset, so tests can control Block2/failure behavior.
type echoHandler struct {
	payload   []byte
	newOffset int
	fail      bool
}

func (h *echoHandler) Handle(req *Request, resp *Response, payload []byte, maxChunk int) (int, int) {
	if h.fail {
		return 0, 0
	}
	n := copy(payload, h.payload)
	resp.Payload = payload[:n]
	return 1, h.newOffset
}

// fakeResource is a minimal Resource for tests.
type fakeResource struct {
	url       string
	hasSub    bool
}

func (r fakeResource) URL() string            { return r.url }
func (r fakeResource) HasSubResources() bool { return r.hasSub }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxObservers = 4
	cfg.ObserveRefreshInterval = 1000
	cfg.MaxChunkSize = 64
	return cfg
}
