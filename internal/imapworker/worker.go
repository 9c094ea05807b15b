// Package imapworker implements the IMAP ingest worker (§4.C): a single
// long-running connection that polls one mailbox on a fixed interval,
// translating new messages into Lote rows.
package imapworker

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/google/uuid"

	"github.com/dacrisa/comandas-core/internal/batch"
	"github.com/dacrisa/comandas-core/internal/db"
	"github.com/dacrisa/comandas-core/internal/eventbus"
)

// State is the worker's connection state (§4.C).
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StatePolling      State = "POLLING"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
)

// Config holds the mailbox connection settings.
type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Folder       string
	PollInterval time.Duration
	Secure       bool
}

// Status is a point-in-time snapshot for the §2.O status endpoint.
type Status struct {
	State      State
	LastPollAt time.Time
	LastError  string
}

// Worker owns one IMAP connection and the poll cycle.
type Worker struct {
	cfg      Config
	database *sql.DB
	bus      *eventbus.Bus
	proc     *batch.Processor

	pollNow chan struct{}
	stop    chan struct{}
	done    chan struct{}

	mu         sync.RWMutex
	state      State
	lastPollAt time.Time
	lastError  string
	client     *imapclient.Client
}

func NewWorker(cfg Config, database *sql.DB, bus *eventbus.Bus, proc *batch.Processor) *Worker {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &Worker{
		cfg:      cfg,
		database: database,
		bus:      bus,
		proc:     proc,
		pollNow:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateDisconnected,
	}
}

// PollNow nudges the worker to poll immediately instead of waiting for the
// next tick. Non-blocking: a pending nudge is not duplicated.
func (w *Worker) PollNow() {
	select {
	case w.pollNow <- struct{}{}:
	default:
	}
}

// Status returns the current connection state for the status endpoint.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{State: w.state, LastPollAt: w.lastPollAt, LastError: w.lastError}
}

// Stop signals Run to tear down the connection and wait for the in-flight
// poll to finish before returning.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) recordError(err error) {
	w.mu.Lock()
	w.lastError = err.Error()
	w.mu.Unlock()
	log.Printf("ERROR: imap: %v", err)
}

// Run drives the Disconnected → Connecting → Connected → Polling state
// machine until ctx is cancelled or Stop is called.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	backoff := initialBackoff
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if w.client == nil {
			if err := w.connect(ctx); err != nil {
				w.setState(StateDisconnected)
				w.recordError(err)
				log.Printf("ERROR: imap: connect failed: %v (retry in %s)", err, backoff)
				select {
				case <-ctx.Done():
					return
				case <-w.stop:
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			backoff = initialBackoff
		}

		select {
		case <-ctx.Done():
			w.disconnect()
			return
		case <-w.stop:
			w.disconnect()
			return
		case <-ticker.C:
			w.poll(ctx)
		case <-w.pollNow:
			w.poll(ctx)
		}
	}
}

func (w *Worker) connect(ctx context.Context) error {
	w.setState(StateConnecting)

	addr := fmt.Sprintf("%s:%d", w.cfg.Host, w.cfg.Port)
	var c *imapclient.Client
	var err error
	if w.cfg.Secure {
		c, err = imapclient.DialTLS(addr, nil)
	} else {
		c, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	if err := c.Login(w.cfg.User, w.cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return fmt.Errorf("login: %w", err)
	}

	w.client = c
	w.setState(StateConnected)
	return nil
}

func (w *Worker) disconnect() {
	if w.client != nil {
		_ = w.client.Logout().Wait()
		_ = w.client.Close()
		w.client = nil
	}
	w.setState(StateDisconnected)
}

// poll implements the §4.C poll cycle.
func (w *Worker) poll(ctx context.Context) {
	w.setState(StatePolling)
	defer w.setState(StateConnected)

	q := db.New(w.database)

	active, err := q.GetActiveShift(ctx)
	if err != nil {
		w.recordError(err)
		return
	}
	now := time.Now().UTC()
	if active == nil {
		if cursor, err := q.GetImapCursor(ctx); err != nil {
			w.recordError(err)
		} else if err := q.SaveImapCursor(ctx, cursor.LastUID, cursor.UIDValidity, now); err != nil {
			w.recordError(err)
		}
		w.mu.Lock()
		w.lastPollAt = now
		w.mu.Unlock()
		return
	}

	mbox, err := w.client.Select(w.cfg.Folder, nil).Wait()
	if err != nil {
		w.recordError(err)
		w.disconnect()
		return
	}
	uidValidity := int64(mbox.UIDValidity)

	cursor, err := q.GetImapCursor(ctx)
	if err != nil {
		w.recordError(err)
		return
	}

	lastUID := uint32(cursor.LastUID)
	if cursor.UIDValidity.Valid && cursor.UIDValidity.Int64 != uidValidity {
		log.Printf("imap: uidvalidity changed %d -> %d, resetting cursor", cursor.UIDValidity.Int64, uidValidity)
		lastUID = 0
	}

	uidSet := imap.UIDSet{}
	uidSet.AddRange(imap.UID(lastUID+1), 0)

	fetchOptions := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}

	maxUID := lastUID
	fetchCmd := w.client.Fetch(uidSet, fetchOptions)
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buffered, err := msg.Collect()
		if err != nil {
			w.recordError(err)
			continue
		}
		uid := uint32(buffered.UID)
		if uid > maxUID {
			maxUID = uid
		}
		w.ingestMessage(ctx, active.ID, uidValidity, uid, buffered)
	}
	if err := fetchCmd.Close(); err != nil {
		w.recordError(err)
	}

	if err := q.SaveImapCursor(ctx, int64(maxUID), sql.NullInt64{Int64: uidValidity, Valid: true}, now); err != nil {
		w.recordError(err)
		return
	}
	w.mu.Lock()
	w.lastPollAt = now
	w.mu.Unlock()
}

// ingestMessage implements §4.C step 5: idempotent insert, body extraction,
// and error-absorption into an ERROR_PARSE lote so one bad message cannot
// stall the mailbox.
func (w *Worker) ingestMessage(ctx context.Context, activeShiftID string, uidValidity int64, uid uint32, msg *imapclient.FetchMessageBuffer) {
	q := db.New(w.database)
	id := uuid.NewString()
	receivedAt := time.Now().UTC()

	subject := ""
	if msg.Envelope != nil {
		subject = msg.Envelope.Subject
	}

	var bodyRaw string
	var extractErr error
	for _, section := range msg.BodySection {
		bodyRaw, extractErr = extractBody(section.Bytes)
		break
	}

	parseStatus := db.ParseStatusPending
	var parseError sql.NullString
	if extractErr != nil {
		parseStatus = db.ParseStatusErrorParse
		parseError = sql.NullString{String: extractErr.Error(), Valid: true}
	}

	insertedID, inserted, err := q.InsertLoteIfNew(ctx, id, uidValidity, int64(uid), receivedAt, subject, bodyRaw, parseStatus, parseError, activeShiftID)
	if err != nil {
		w.recordError(err)
		return
	}
	if !inserted {
		if _, err := w.bus.Publish(ctx, q, nil, eventbus.TypeDuplicateIgnored, eventbus.EntityLote, id,
			map[string]interface{}{"uidvalidity": uidValidity, "uid": uid}); err != nil {
			w.recordError(err)
		}
		return
	}

	if extractErr != nil {
		if _, err := w.bus.Publish(ctx, q, nil, eventbus.TypeEmailReadError, eventbus.EntityLote, insertedID,
			map[string]interface{}{"message": extractErr.Error()}); err != nil {
			w.recordError(err)
		}
		return
	}

	if _, err := w.bus.Publish(ctx, q, nil, eventbus.TypeNewEmail, eventbus.EntityLote, insertedID,
		map[string]interface{}{"subject": subject}); err != nil {
		w.recordError(err)
		return
	}

	if err := w.proc.ProcessLote(ctx, insertedID); err != nil {
		log.Printf("ERROR: imap: batch processing of lote %s failed: %v", insertedID, err)
	}
}

// extractBody locates the first blank-line separator in the raw RFC 822
// source and returns everything after it, unparsed (§4.C: "no MIME decoding
// is mandated").
func extractBody(raw []byte) (string, error) {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	idx := bytes.Index(normalized, []byte("\n\n"))
	if idx < 0 {
		return "", fmt.Errorf("no header/body separator found")
	}
	return strings.TrimSpace(string(normalized[idx+2:])), nil
}
