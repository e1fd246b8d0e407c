package activitypub

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/flakm/fedipage/domain"
	"golang.org/x/sync/errgroup"
)

// FailureKind classifies why a single recipient could not be delivered to.
type FailureKind string

const (
	Unreachable    FailureKind = "unreachable"
	RemoteRejected FailureKind = "remote_rejected"
	SigningFailed  FailureKind = "signing_failed"
)

// DeliveryError is a per-recipient failure. It never aborts deliveries to
// other recipients.
type DeliveryError struct {
	Kind FailureKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// DeliveryResult is the outcome for one recipient inbox.
type DeliveryResult struct {
	Inbox string
	Err   *DeliveryError
}

func (r DeliveryResult) Succeeded() bool {
	return r.Err == nil
}

// DeliveryReport collects the independent per-recipient outcomes of one
// fan-out.
type DeliveryReport struct {
	Results []DeliveryResult
}

func (r *DeliveryReport) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			n++
		}
	}
	return n
}

func (r *DeliveryReport) Failed() int {
	return len(r.Results) - r.Delivered()
}

// FirstError returns the first per-recipient failure, or nil when every
// delivery succeeded.
func (r *DeliveryReport) FirstError() error {
	for _, res := range r.Results {
		if res.Err != nil {
			return res.Err
		}
	}
	return nil
}

// Deliverer posts signed activities to remote inboxes. One best-effort
// attempt per recipient, no retries, bounded concurrency.
type Deliverer struct {
	client    *http.Client
	workers   int
	userAgent string
}

func NewDeliverer(workers int) *Deliverer {
	if workers <= 0 {
		workers = 8
	}
	return &Deliverer{
		client:    &http.Client{Timeout: 30 * time.Second},
		workers:   workers,
		userAgent: "fedipage/1.0 ActivityPub",
	}
}

// Deliver sends one signed copy of the activity to each inbox. Outcomes
// are recorded independently; a failure on one recipient never blocks or
// aborts the others.
func (d *Deliverer) Deliver(ctx context.Context, env *domain.Envelope, from *domain.Actor, inboxes []string) *DeliveryReport {
	report := &DeliveryReport{Results: make([]DeliveryResult, len(inboxes))}
	if len(inboxes) == 0 {
		return report
	}

	body, err := json.Marshal(env)
	if err != nil {
		d.failAll(report, inboxes, SigningFailed, err)
		return report
	}

	privateKey, err := ParsePrivateKey(from.PrivateKeyPem)
	if err != nil {
		d.failAll(report, inboxes, SigningFailed, err)
		return report
	}

	keyId := from.URI + "#main-key"

	g := new(errgroup.Group)
	g.SetLimit(d.workers)
	for i, inbox := range inboxes {
		i, inbox := i, inbox
		g.Go(func() error {
			report.Results[i] = DeliveryResult{Inbox: inbox}
			if derr := d.deliverOne(ctx, body, inbox, privateKey, keyId); derr != nil {
				report.Results[i].Err = derr
				log.Warn("delivery failed", "inbox", inbox, "kind", derr.Kind, "err", derr.Err)
			} else {
				log.Info("delivered", "type", env.Type, "inbox", inbox)
			}
			return nil
		})
	}
	g.Wait()

	return report
}

func (d *Deliverer) failAll(report *DeliveryReport, inboxes []string, kind FailureKind, err error) {
	for i, inbox := range inboxes {
		report.Results[i] = DeliveryResult{
			Inbox: inbox,
			Err:   &DeliveryError{Kind: kind, Err: err},
		}
	}
}

func (d *Deliverer) deliverOne(ctx context.Context, body []byte, inbox string, privateKey *rsa.PrivateKey, keyId string) *DeliveryError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Kind: Unreachable, Err: err}
	}

	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	if err := SignRequest(req, privateKey, keyId); err != nil {
		return &DeliveryError{Kind: SigningFailed, Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{Kind: Unreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{Kind: RemoteRejected, Err: fmt.Errorf("remote server returned status %d", resp.StatusCode)}
	}

	return nil
}
