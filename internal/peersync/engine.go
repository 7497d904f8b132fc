// Package peersync связывает реплики узлов между собой.
//
// При подключении к узлу сначала открывается поток обновлений (websocket),
// затем выполняется полная сверка по сводке (ID + отпечаток записи): недостающие
// записи запрашиваются, отсутствующие у удаленного узла отправляются ему.
// Дальше каждая принятая локально запись рассылается всем подключенным узлам.
// Слияние идемпотентно, поэтому прерванную сверку можно просто повторить.
package peersync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/internal/replica"
	"github.com/iudanet/linkmesh/internal/storage"
	"github.com/iudanet/linkmesh/pkg/api"
)

var (
	// ErrSyncUnavailable узлы настроены, но ни один не подключен.
	// Локальная работа продолжается, распространение записей откладывается.
	ErrSyncUnavailable = errors.New("no peers reachable")

	// ErrBatchTooLarge запрос содержит слишком много записей
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrNotRunning движок не запущен или уже остановлен
	ErrNotRunning = errors.New("sync engine is not running")

	// ErrSelfPeer адрес указывает на этот же узел
	ErrSelfPeer = errors.New("address points to this node")

	// ErrInvalidAddress адрес узла не разбирается
	ErrInvalidAddress = errors.New("invalid peer address")

	errAlready   = errors.New("already connected")
	errNotSynced = errors.New("session closed before reconciliation")
)

const (
	DefaultResyncInterval = time.Minute
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	DefaultBatchSize      = 500
	MaxBatchSize          = 5000

	sessionBuffer    = 256
	readLimit        = 1 << 20
	handshakeTimeout = 10 * time.Second
)

// Config параметры движка синхронизации
type Config struct {
	HTTPClient     *http.Client
	AdvertiseAddr  string   // адрес, по которому другие узлы подключаются к этому
	BootstrapPeers []string // начальный упорядоченный список узлов
	ResyncInterval time.Duration
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	BatchSize      int
}

func (c *Config) setDefaults() {
	if c.ResyncInterval < 0 {
		c.ResyncInterval = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = max(DefaultBackoffMax, c.BackoffBase)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}

// SyncResult итог одной сверки с узлом
type SyncResult struct {
	Pulled    int // записей получено от узла
	Merged    int // из них добавлено или заменило локальные
	Conflicts int // конфликтов по ID
	Skipped   int // уже известных или невалидных
	Pushed    int // записей отправлено узлу
}

// PeerStatus состояние связи с одним узлом
type PeerStatus struct {
	LastSync  time.Time `json:"last_sync,omitempty"`
	Address   string    `json:"address,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Connected bool      `json:"connected"`
	Inbound   bool      `json:"inbound,omitempty"`
}

// Status сводное состояние синхронизации
type Status struct {
	NodeID    string       `json:"node_id"`
	Peers     []PeerStatus `json:"peers"`
	Known     int          `json:"known"`
	Connected int          `json:"connected"`
}

type peerState struct {
	lastSync time.Time
	addr     string
	nodeID   string
	lastErr  string
	self     bool
	dialing  bool
}

// Engine движок синхронизации реплики с другими узлами
type Engine struct {
	replica  *replica.Map
	logger   *slog.Logger
	runCtx   context.Context
	peers    map[string]*peerState // адрес -> состояние
	sessions map[*session]struct{}
	cfg      Config
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// New создает движок для реплики m
func New(m *replica.Map, cfg Config, logger *slog.Logger) *Engine {
	cfg.setDefaults()
	if addr, ok := normalizeAddr(cfg.AdvertiseAddr); ok {
		cfg.AdvertiseAddr = addr
	} else {
		cfg.AdvertiseAddr = ""
	}

	e := &Engine{
		replica:  m,
		logger:   logger,
		cfg:      cfg,
		peers:    make(map[string]*peerState),
		sessions: make(map[*session]struct{}),
	}
	e.AddPeers(cfg.BootstrapPeers)

	return e
}

// NodeID возвращает идентификатор этого узла
func (e *Engine) NodeID() string {
	return e.replica.NodeID()
}

// Run запускает подключение ко всем известным узлам и рассылку обновлений.
// Блокирует до отмены ctx, затем дожидается завершения всех сессий.
func (e *Engine) Run(ctx context.Context) error {
	// Подписка до первой сессии: ни одно локальное изменение не проходит мимо
	sub := e.replica.Subscribe(e.broadcast)
	defer sub.Close()

	e.mu.Lock()
	if e.runCtx != nil {
		e.mu.Unlock()
		return fmt.Errorf("sync engine already started")
	}
	e.runCtx = ctx
	for _, ps := range e.peers {
		e.startDialerLocked(ps)
	}
	known := len(e.peers)
	e.mu.Unlock()

	e.logger.Info("Sync engine started",
		"node_id", e.NodeID(),
		"advertise_addr", e.cfg.AdvertiseAddr,
		"peers", known)

	<-ctx.Done()

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("Sync engine stopped")
	return nil
}

// acquire регистрирует рабочую горутину, если движок работает
func (e *Engine) acquire() (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runCtx == nil || e.closed || e.runCtx.Err() != nil {
		return nil, false
	}
	e.wg.Add(1)
	return e.runCtx, true
}

// AddPeers добавляет адреса узлов. Уже известные адреса и собственный адрес
// пропускаются. Возвращает число добавленных адресов.
func (e *Engine) AddPeers(addrs []string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	added := 0
	for _, raw := range addrs {
		addr, ok := normalizeAddr(raw)
		if !ok {
			if strings.TrimSpace(raw) != "" {
				e.logger.Warn("Ignoring invalid peer address", "address", raw)
			}
			continue
		}
		if addr == e.cfg.AdvertiseAddr {
			continue
		}
		if _, known := e.peers[addr]; known {
			continue
		}

		ps := &peerState{addr: addr}
		e.peers[addr] = ps
		added++
		e.logger.Info("Peer added", "address", addr)

		if e.runCtx != nil {
			e.startDialerLocked(ps)
		}
	}
	return added
}

func (e *Engine) startDialerLocked(ps *peerState) {
	if ps.dialing || ps.self || e.closed || e.runCtx == nil || e.runCtx.Err() != nil {
		return
	}
	ps.dialing = true
	e.wg.Add(1)
	go e.dialLoop(e.runCtx, ps.addr)
}

// Peers возвращает известные адреса узлов (без собственного)
func (e *Engine) Peers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.peers))
	for addr, ps := range e.peers {
		if ps.self {
			continue
		}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Status возвращает состояние связи с узлами
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{NodeID: e.NodeID()}
	connected := make(map[string]struct{})
	covered := make(map[*session]struct{})

	addrs := make([]string, 0, len(e.peers))
	for addr := range e.peers {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		ps := e.peers[addr]
		if ps.self {
			continue
		}
		st.Known++

		p := PeerStatus{
			Address:   addr,
			NodeID:    ps.nodeID,
			LastSync:  ps.lastSync,
			LastError: ps.lastErr,
		}
		for s := range e.sessions {
			if s.remoteAddr == addr {
				p.Connected = true
				p.NodeID = s.remoteNode
				p.Inbound = p.Inbound || !s.outbound
				covered[s] = struct{}{}
			}
		}
		st.Peers = append(st.Peers, p)
	}

	// Входящие сессии от узлов, которые не сообщили адрес
	for s := range e.sessions {
		connected[s.remoteNode] = struct{}{}
		if _, ok := covered[s]; ok {
			continue
		}
		st.Peers = append(st.Peers, PeerStatus{NodeID: s.remoteNode, Connected: true, Inbound: !s.outbound})
	}
	st.Connected = len(connected)

	return st
}

// CheckConnectivity возвращает ErrSyncUnavailable, если узлы известны,
// но ни один не подключен. Узел без соседей считается исправным.
func (e *Engine) CheckConnectivity() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sessions) > 0 {
		return nil
	}
	for _, ps := range e.peers {
		if !ps.self {
			return ErrSyncUnavailable
		}
	}
	return nil
}

// Reconcile выполняет разовую полную сверку с узлом по адресу addr
func (e *Engine) Reconcile(ctx context.Context, addr string) (*SyncResult, error) {
	normalized, ok := normalizeAddr(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return e.reconcile(ctx, NewClient(normalized, e.cfg.HTTPClient))
}

func (e *Engine) reconcile(ctx context.Context, client *Client) (*SyncResult, error) {
	result := &SyncResult{}

	remote, err := client.Digest(ctx)
	if err != nil {
		return nil, err
	}
	if remote.NodeID == e.NodeID() {
		return nil, ErrSelfPeer
	}
	e.discover(remote.Address, remote.Peers)

	local, err := e.replica.Digest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get local digest: %w", err)
	}

	remoteFP := make(map[string]string, len(remote.Entries))
	var missing []string
	for _, d := range remote.Entries {
		remoteFP[d.ID] = d.Fingerprint
		if local[d.ID] != d.Fingerprint {
			missing = append(missing, d.ID)
		}
	}

	// Забираем недостающие и отличающиеся записи
	for _, batch := range chunk(missing, e.cfg.BatchSize) {
		entries, err := client.Fetch(ctx, batch)
		if err != nil {
			return nil, err
		}
		result.Pulled += len(entries)

		for _, w := range entries {
			r, err := e.replica.Merge(ctx, fromWire(w), remote.NodeID)
			if err != nil && !errors.Is(err, replica.ErrInvalidEntry) {
				return nil, fmt.Errorf("failed to merge entry %s: %w", w.ID, err)
			}
			countMerge(r, &result.Merged, &result.Conflicts, &result.Skipped)
			if err != nil {
				e.logger.Warn("Rejected invalid entry from peer", "entry_id", w.ID, "node_id", remote.NodeID, "error", err)
			}
		}
	}

	// После слияния отправляем то, чего у узла нет или что у него отличается
	all, err := e.replica.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var outgoing []*models.ReplicaEntry
	for _, entry := range all {
		if remoteFP[entry.ID] != entry.Fingerprint() {
			outgoing = append(outgoing, entry)
		}
	}

	for _, batch := range chunk(outgoing, e.cfg.BatchSize) {
		if _, err := client.Push(ctx, api.PushRequest{NodeID: e.NodeID(), Entries: toWireAll(batch)}); err != nil {
			return nil, err
		}
		result.Pushed += len(batch)
	}

	e.markSynced(client.baseURL, remote.NodeID)

	e.logger.Info("Reconciled with peer",
		"address", client.baseURL,
		"node_id", remote.NodeID,
		"pulled", result.Pulled,
		"merged", result.Merged,
		"conflicts", result.Conflicts,
		"pushed", result.Pushed)

	return result, nil
}

// Digest возвращает сводку локальной реплики в порядке вставки
func (e *Engine) Digest(ctx context.Context) (*api.DigestResponse, error) {
	all, err := e.replica.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	resp := &api.DigestResponse{
		NodeID:  e.NodeID(),
		Address: e.cfg.AdvertiseAddr,
		Peers:   e.Peers(),
		Entries: make([]api.DigestEntry, 0, len(all)),
	}
	for _, entry := range all {
		resp.Entries = append(resp.Entries, api.DigestEntry{ID: entry.ID, Fingerprint: entry.Fingerprint()})
	}
	return resp, nil
}

// Fetch возвращает записи по ID, неизвестные ID пропускаются
func (e *Engine) Fetch(ctx context.Context, ids []string) ([]api.Entry, error) {
	if len(ids) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d ids, limit %d", ErrBatchTooLarge, len(ids), MaxBatchSize)
	}

	out := make([]api.Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := e.replica.Get(ctx, id)
		if errors.Is(err, storage.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
		}
		out = append(out, toWire(entry))
	}
	return out, nil
}

// Push сливает записи, присланные узлом req.NodeID
func (e *Engine) Push(ctx context.Context, req api.PushRequest) (*api.PushResponse, error) {
	if len(req.Entries) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d entries, limit %d", ErrBatchTooLarge, len(req.Entries), MaxBatchSize)
	}

	resp := &api.PushResponse{}
	for _, w := range req.Entries {
		r, err := e.replica.Merge(ctx, fromWire(w), req.NodeID)
		if err != nil && !errors.Is(err, replica.ErrInvalidEntry) {
			return nil, fmt.Errorf("failed to merge entry %s: %w", w.ID, err)
		}
		if err != nil {
			e.logger.Warn("Rejected invalid pushed entry", "entry_id", w.ID, "node_id", req.NodeID, "error", err)
		}
		countMerge(r, &resp.Merged, &resp.Conflicts, &resp.Skipped)
	}

	e.logger.Debug("Push merged", "node_id", req.NodeID, "entries", len(req.Entries), "merged", resp.Merged)
	return resp, nil
}

func countMerge(r replica.MergeResult, merged, conflicts, skipped *int) {
	switch r {
	case replica.MergeInserted:
		*merged++
	case replica.MergeReplaced:
		*merged++
		*conflicts++
	case replica.MergeDiscarded:
		*conflicts++
		*skipped++
	default:
		*skipped++
	}
}

// discover добавляет адреса, сообщенные удаленным узлом
func (e *Engine) discover(addr string, peers []string) {
	candidates := make([]string, 0, len(peers)+1)
	if addr != "" {
		candidates = append(candidates, addr)
	}
	candidates = append(candidates, peers...)
	if n := e.AddPeers(candidates); n > 0 {
		e.logger.Info("Discovered peers transitively", "added", n)
	}
}

func (e *Engine) markSynced(addr, nodeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ps, ok := e.peers[addr]; ok {
		ps.lastSync = time.Now().UTC()
		ps.nodeID = nodeID
		ps.lastErr = ""
	}
}

func (e *Engine) recordError(addr string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ps, ok := e.peers[addr]; ok {
		ps.lastErr = err.Error()
	}
}

func (e *Engine) markSelf(addr string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ps, ok := e.peers[addr]; ok {
		ps.self = true
		ps.dialing = false
	}
}

func (e *Engine) hasSessionTo(addr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for s := range e.sessions {
		if s.remoteAddr == addr {
			return true
		}
	}
	return false
}

func (e *Engine) newBackoff() retry.Backoff {
	b := retry.NewExponential(e.cfg.BackoffBase)
	b = retry.WithJitterPercent(20, b)
	return retry.WithCappedDuration(e.cfg.BackoffMax, b)
}

// dialLoop поддерживает исходящее соединение с узлом addr
func (e *Engine) dialLoop(ctx context.Context, addr string) {
	defer e.wg.Done()

	client := NewClient(addr, e.cfg.HTTPClient)

	for {
		err := retry.Do(ctx, e.newBackoff(), func(ctx context.Context) error {
			if e.hasSessionTo(addr) {
				return retry.RetryableError(errAlready)
			}

			err := e.connect(ctx, client)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrSelfPeer), ctx.Err() != nil:
				return err
			}

			e.recordError(addr, err)
			e.logger.Warn("Peer unreachable, will retry", "address", addr, "error", err)
			return retry.RetryableError(err)
		})

		if errors.Is(err, ErrSelfPeer) {
			e.markSelf(addr)
			e.logger.Info("Peer address points to this node, not dialing", "address", addr)
			return
		}
		if ctx.Err() != nil {
			return
		}

		// Сессия завершилась: новая серия попыток с начальной задержкой
		if err := waitWithContext(ctx, e.cfg.BackoffBase); err != nil {
			return
		}
	}
}

// connect открывает поток к узлу и обслуживает сессию до ее завершения.
// Возвращает nil, если в сессии прошла хотя бы одна сверка; иначе ошибку,
// чтобы задержка между попытками продолжала расти.
func (e *Engine) connect(ctx context.Context, client *Client) error {
	wsURL, err := client.StreamURL()
	if err != nil {
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(hctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	conn.SetReadLimit(readLimit)

	if err := wsjson.Write(hctx, conn, api.Frame{Type: api.FrameHello, Hello: e.hello()}); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake failed")
		return fmt.Errorf("failed to send hello: %w", err)
	}
	hello, err := readHello(hctx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "handshake failed")
		return err
	}
	if hello.NodeID == e.NodeID() {
		_ = conn.Close(websocket.StatusNormalClosure, "self")
		return ErrSelfPeer
	}

	s := newSession(conn, hello, client.baseURL, true, e.cfg.HTTPClient)
	err = e.runSession(ctx, s)
	e.logger.Info("Peer session closed", "address", client.baseURL, "node_id", hello.NodeID, "error", err)

	if ctx.Err() != nil {
		return nil
	}
	if !s.reconciled.Load() {
		if err == nil {
			return errNotSynced
		}
		return fmt.Errorf("%w: %w", errNotSynced, err)
	}
	if err != nil {
		e.recordError(client.baseURL, err)
	}
	return nil
}

// Accept обслуживает входящий поток обновлений от другого узла
func (e *Engine) Accept(w http.ResponseWriter, r *http.Request) {
	ctx, ok := e.acquire()
	if !ok {
		http.Error(w, ErrNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}
	defer e.wg.Done()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		e.logger.Warn("Failed to accept peer stream", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(readLimit)

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	hello, err := readHello(hctx, conn)
	if err == nil {
		err = wsjson.Write(hctx, conn, api.Frame{Type: api.FrameHello, Hello: e.hello()})
	}
	cancel()
	if err != nil {
		e.logger.Warn("Peer handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		_ = conn.Close(websocket.StatusProtocolError, "handshake failed")
		return
	}
	if hello.NodeID == e.NodeID() {
		_ = conn.Close(websocket.StatusNormalClosure, "self")
		return
	}

	addr, _ := normalizeAddr(hello.Address)
	e.discover(addr, hello.Peers)

	s := newSession(conn, hello, addr, false, e.cfg.HTTPClient)
	err = e.runSession(ctx, s)
	e.logger.Info("Inbound peer session closed", "node_id", hello.NodeID, "error", err)
}

func (e *Engine) hello() *api.Hello {
	return &api.Hello{
		NodeID:  e.NodeID(),
		Address: e.cfg.AdvertiseAddr,
		Peers:   e.Peers(),
	}
}

func readHello(ctx context.Context, conn *websocket.Conn) (*api.Hello, error) {
	var f api.Frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}
	if f.Type != api.FrameHello || f.Hello == nil || f.Hello.NodeID == "" {
		return nil, fmt.Errorf("expected hello frame, got %q", f.Type)
	}
	return f.Hello, nil
}

// broadcast рассылает изменения реплики всем сессиям, кроме узла-источника
func (e *Engine) broadcast(change replica.Change) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for s := range e.sessions {
		switch change.Kind {
		case replica.ChangeResync:
			s.requestResync()
		case replica.ChangeInserted, replica.ChangeReplaced:
			if s.remoteNode == change.Source {
				continue
			}
			select {
			case s.out <- change.Entry:
			default:
				// Очередь сессии переполнена: догоним сверкой
				s.requestResync()
			}
		}
	}
}

func (e *Engine) register(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sessions[s] = struct{}{}
	if ps, ok := e.peers[s.remoteAddr]; ok {
		ps.nodeID = s.remoteNode
		ps.lastErr = ""
	}
	e.logger.Info("Peer connected", "node_id", s.remoteNode, "address", s.remoteAddr, "outbound", s.outbound)
}

func (e *Engine) unregister(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.sessions, s)
}

// runSession обслуживает установленную сессию до ошибки или отмены ctx
func (e *Engine) runSession(ctx context.Context, s *session) error {
	e.register(s)
	defer e.unregister(s)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.readLoop(gctx, s)
	})
	g.Go(func() error {
		return e.writeLoop(gctx, s)
	})

	err := g.Wait()
	_ = s.conn.Close(websocket.StatusNormalClosure, "")

	if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

func (e *Engine) readLoop(ctx context.Context, s *session) error {
	for {
		var f api.Frame
		if err := wsjson.Read(ctx, s.conn, &f); err != nil {
			return err
		}

		switch f.Type {
		case api.FrameEntry:
			if f.Entry == nil {
				continue
			}
			r, err := e.replica.Merge(ctx, fromWire(*f.Entry), s.remoteNode)
			if errors.Is(err, replica.ErrInvalidEntry) {
				e.logger.Warn("Rejected invalid entry from stream", "entry_id", f.Entry.ID, "node_id", s.remoteNode, "error", err)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to merge streamed entry: %w", err)
			}
			e.logger.Debug("Streamed entry merged", "entry_id", f.Entry.ID, "node_id", s.remoteNode, "result", r.String())
		case api.FrameHello:
			if f.Hello != nil {
				e.discover(f.Hello.Address, f.Hello.Peers)
			}
		default:
			e.logger.Debug("Ignoring unknown frame", "type", f.Type, "node_id", s.remoteNode)
		}
	}
}

func (e *Engine) writeLoop(ctx context.Context, s *session) error {
	var tick <-chan time.Time
	if s.outbound {
		// Поток уже открыт, поэтому записи, принятые во время сверки, не теряются
		s.requestResync()
		if e.cfg.ResyncInterval > 0 {
			t := time.NewTicker(e.cfg.ResyncInterval)
			defer t.Stop()
			tick = t.C
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-s.out:
			w := toWire(entry)
			if err := wsjson.Write(ctx, s.conn, api.Frame{Type: api.FrameEntry, Entry: &w}); err != nil {
				return fmt.Errorf("failed to send entry: %w", err)
			}
		case <-s.resync:
			if err := e.reconcileSession(ctx, s); err != nil {
				return err
			}
		case <-tick:
			if err := e.reconcileSession(ctx, s); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) reconcileSession(ctx context.Context, s *session) error {
	if s.client == nil {
		// Адрес узла неизвестен, сверку выполнит он сам
		return nil
	}
	if _, err := e.reconcile(ctx, s.client); err != nil {
		return fmt.Errorf("reconciliation with %s failed: %w", s.remoteAddr, err)
	}
	s.reconciled.Store(true)
	return nil
}

// session одно установленное соединение с узлом
type session struct {
	conn       *websocket.Conn
	client     *Client // nil, если адрес узла неизвестен
	out        chan *models.ReplicaEntry
	resync     chan struct{}
	remoteNode string
	remoteAddr string
	reconciled atomic.Bool // хотя бы одна сверка завершилась успешно
	outbound   bool
}

func newSession(conn *websocket.Conn, hello *api.Hello, addr string, outbound bool, httpClient *http.Client) *session {
	s := &session{
		conn:       conn,
		out:        make(chan *models.ReplicaEntry, sessionBuffer),
		resync:     make(chan struct{}, 1),
		remoteNode: hello.NodeID,
		remoteAddr: addr,
		outbound:   outbound,
	}
	if addr != "" {
		s.client = NewClient(addr, httpClient)
	}
	return s
}

func (s *session) requestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// normalizeAddr приводит адрес узла к виду scheme://host[:port][/path] без завершающего слеша
func normalizeAddr(raw string) (string, bool) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", false
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	addr = strings.TrimRight(addr, "/")

	u, err := url.Parse(addr)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return addr, true
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
