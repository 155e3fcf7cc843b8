package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
	"github.com/tobi-adeyemi/invoice-pipeline/internal/entity"
)

type memStore map[string][]byte

func (m memStore) Save(_ context.Context, filename string, content []byte) (entity.DocumentRef, error) {
	panic("not used in these tests")
}

func (m memStore) LoadBytes(_ context.Context, ref entity.DocumentRef) ([]byte, error) {
	b, ok := m[ref.ID.String()]
	if !ok {
		return nil, errors.New("document bytes missing")
	}
	return b, nil
}

type recordingSink struct {
	saved []*entity.Outcome
	err   error
}

func (r *recordingSink) SaveOutcome(_ context.Context, o *entity.Outcome) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, o)
	return nil
}

func newTestService(sink ResultSink, vendors ...string) (*Service, memStore) {
	ext := &stubExtractor{results: []extractResult{{fields: fullFields()}}}
	eng := newTestEngine(goodOCR(0.9), ext, scorerFunc(noAnomalies), vendors...)
	store := memStore{}
	return NewService(store, eng, sink, nil), store
}

func TestServiceRunPersistsOutcome(t *testing.T) {
	sink := &recordingSink{}
	svc, store := newTestService(sink, "Acme Corp")

	ref := pdfRef()
	store[ref.ID.String()] = pdfBytes

	outcome, err := svc.Run(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, constants.OutcomeAccepted, outcome.Kind)
	require.Len(t, sink.saved, 1)
	assert.Same(t, outcome, sink.saved[0])
}

func TestServiceRunLoadFailure(t *testing.T) {
	sink := &recordingSink{}
	svc, _ := newTestService(sink, "Acme Corp")

	// bytes never staged
	_, err := svc.Run(context.Background(), pdfRef())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load document")
	assert.Empty(t, sink.saved)
}

func TestServiceRunSinkFailurePropagates(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	svc, store := newTestService(sink, "Acme Corp")

	ref := pdfRef()
	store[ref.ID.String()] = pdfBytes

	_, err := svc.Run(context.Background(), ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist outcome")
}

func TestServiceReprocessRunsIdenticalPath(t *testing.T) {
	sink := &recordingSink{}
	svc, store := newTestService(sink, "Acme Corp")

	ref := pdfRef()
	store[ref.ID.String()] = pdfBytes

	first, err := svc.Run(context.Background(), ref)
	require.NoError(t, err)

	second, err := svc.Reprocess(context.Background(), ref, first)
	require.NoError(t, err)

	// A reprocess is a fresh run: new outcome record, same terminal state,
	// attempt indices starting over at zero. The prior outcome is untouched.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Kind, second.Kind)
	require.Len(t, second.Attempts, len(first.Attempts))
	assert.Equal(t, 0, second.Attempts[0].Index)
	assert.Equal(t, first.Fields, second.Fields)
	require.Len(t, sink.saved, 2, "both outcomes were persisted")
}

func TestServiceReprocessWithoutPrior(t *testing.T) {
	sink := &recordingSink{}
	svc, store := newTestService(sink, "Acme Corp")

	ref := pdfRef()
	store[ref.ID.String()] = pdfBytes

	outcome, err := svc.Reprocess(context.Background(), ref, nil)
	require.NoError(t, err)
	assert.Equal(t, constants.OutcomeAccepted, outcome.Kind)
}
