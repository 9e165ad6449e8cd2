package livesync

import (
	"context"
	"sync"
	"time"
)

// Mutator applies optimistic mutations to a subscription's local view and
// issues the matching remote write in the background. The caller is never
// blocked on remote confirmation; the report callback fires asynchronously
// with the write's outcome (nil on success). On failure the local change is
// rolled back before report is called.
//
// Mutations already issued keep running after the view is unsubscribed.
type Mutator struct {
	view    *Subscription
	remote  Remote
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewMutator(view *Subscription, remote Remote) *Mutator {
	return &Mutator{view: view, remote: remote, timeout: defaultMutationTimeout}
}

// ToggleMembership adds member to (or removes it from) the set field of one
// document: the inverse of currentlyMember. The local apply is a set
// operation, so replaying the same intent is idempotent, and the remote write
// is an add-to-set or pull, never an overwrite.
func (m *Mutator) ToggleMembership(docID, field, member string, currentlyMember bool, report func(error)) {
	add := !currentlyMember
	if !m.view.applyToggle(docID, field, member, add) {
		reportAsync(report, ErrUnsubscribed)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var err error
		if add {
			err = m.remote.AddToSet(ctx, m.view.collection, docID, field, member)
		} else {
			err = m.remote.PullFromSet(ctx, m.view.collection, docID, field, member)
		}
		if err != nil {
			m.view.applyToggle(docID, field, member, !add)
		}
		if report != nil {
			report(err)
		}
	}()
}

// AppendItem appends item to the list field of one document locally, then
// issues a remote append. On remote failure the locally appended item is
// retracted.
func (m *Mutator) AppendItem(docID, field string, item any, report func(error)) {
	if !m.view.applyAppend(docID, field, item) {
		reportAsync(report, ErrUnsubscribed)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		err := m.remote.Push(ctx, m.view.collection, docID, field, item)
		if err != nil {
			m.view.applyRemoveLast(docID, field, item)
		}
		if report != nil {
			report(err)
		}
	}()
}

// Wait blocks until every issued mutation has completed. Used at shutdown
// and in tests.
func (m *Mutator) Wait() {
	m.wg.Wait()
}

func reportAsync(report func(error), err error) {
	if report == nil {
		return
	}
	go report(err)
}
