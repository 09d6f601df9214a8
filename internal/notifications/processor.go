package notifications

import (
	"context"
	"sync"

	"github.com/kinebilan/kinebilan-backend/internal/observability/metrics"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

const defaultBatchSize = 100

// ProcessResult summarizes one processor drain.
type ProcessResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// Processor delivers pending notifications. Records are independent, so each
// channel's backlog is dispatched across a bounded pool of workers; the
// guarded settle update keeps every record transitioning exactly once even
// when two processors race.
type Processor struct {
	store    *Store
	patients PatientGetter
	senders  map[Channel]Sender
	workers  int
	metrics  *metrics.BatchMetrics
	logger   *logging.Logger
}

// NewProcessor creates a processor over the given channel senders.
func NewProcessor(store *Store, patients PatientGetter, senders map[Channel]Sender, workers int, m *metrics.BatchMetrics, logger *logging.Logger) *Processor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		store:    store,
		patients: patients,
		senders:  senders,
		workers:  workers,
		metrics:  m,
		logger:   logger,
	}
}

// ProcessPending drains the pending backlog of every configured channel.
// Delivery failures settle the record as failed and do not stop the batch.
func (p *Processor) ProcessPending(ctx context.Context) (*ProcessResult, error) {
	result := &ProcessResult{}
	var mu sync.Mutex

	for _, ch := range AllChannels() {
		sender, ok := p.senders[ch]
		if !ok {
			continue
		}

		pending, err := p.store.ListPending(ctx, ch, defaultBatchSize)
		if err != nil {
			return result, err
		}
		if len(pending) == 0 {
			continue
		}
		p.logger.Info("processing pending notifications", "channel", ch, "count", len(pending))

		jobs := make(chan *Notification)
		var wg sync.WaitGroup
		for i := 0; i < p.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := range jobs {
					sent := p.processOne(ctx, sender, n)
					mu.Lock()
					result.Processed++
					if sent {
						result.Sent++
					} else {
						result.Failed++
					}
					mu.Unlock()
				}
			}()
		}
		for i := range pending {
			jobs <- &pending[i]
		}
		close(jobs)
		wg.Wait()
	}

	return result, nil
}

// processOne delivers a single notification and settles it. Reports whether
// it was sent.
func (p *Processor) processOne(ctx context.Context, sender Sender, n *Notification) bool {
	patient, err := p.patients.GetByID(ctx, n.PatientID)
	if err != nil {
		p.settle(ctx, n, false, err.Error())
		return false
	}

	if err := sender.Send(ctx, patient, n); err != nil {
		p.logger.Error("notification delivery failed",
			"notification_id", n.ID, "channel", n.Channel, "error", err)
		p.settle(ctx, n, false, err.Error())
		return false
	}
	p.settle(ctx, n, true, "")
	return true
}

func (p *Processor) settle(ctx context.Context, n *Notification, sent bool, cause string) {
	var changed bool
	var err error
	if sent {
		changed, err = p.store.MarkSent(ctx, n.ID)
	} else {
		changed, err = p.store.MarkFailed(ctx, n.ID, cause)
	}
	if err != nil {
		p.logger.Error("notification settle failed", "notification_id", n.ID, "error", err)
		return
	}
	if !changed {
		// Another worker settled it first; its outcome stands.
		p.logger.Warn("notification already settled", "notification_id", n.ID)
		return
	}
	status := StatusFailed
	if sent {
		status = StatusSent
	}
	p.metrics.ObserveNotification(string(n.Channel), string(status))
}
