package postpow

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spacemeshos/post-core/shared"
)

const (
	// serviceBackoffInitial is the first poll delay after the remote
	// service reports a job is still in progress.
	serviceBackoffInitial = time.Second
	// serviceBackoffMax bounds the exponential backoff between polls.
	serviceBackoffMax = 30 * time.Second
)

// ServiceProver delegates the RandomX identity PoW search to a remote
// HTTP service instead of computing it locally, for nodes that offload
// the dataset-heavy search to dedicated hardware. It is the second
// IdentityProver variant alongside RandomXPoW.
type ServiceProver struct {
	baseURL string
	client  *http.Client
}

// NewServiceProver returns a ServiceProver that polls baseURL.
func NewServiceProver(baseURL string) *ServiceProver {
	return &ServiceProver{baseURL: baseURL, client: http.DefaultClient}
}

// Prove submits a job to the remote service and polls until it resolves
// to a witness, fails outright, or ctx is cancelled.
func (s *ServiceProver) Prove(ctx context.Context, nonceGroup uint8, challenge [8]byte, difficulty [32]byte, minerID [32]byte) (uint64, error) {
	uri := fmt.Sprintf("%s/job/%s/%d/%s/%s",
		s.baseURL,
		hex.EncodeToString(minerID[:]),
		nonceGroup,
		hex.EncodeToString(challenge[:]),
		hex.EncodeToString(difficulty[:]),
	)

	backoff := serviceBackoffInitial
	for {
		witness, retry, err := s.poll(ctx, uri)
		if err != nil {
			if ctx.Err() != nil {
				return 0, shared.ErrCancelled
			}
			return 0, err
		}
		if !retry {
			return witness, nil
		}
		select {
		case <-ctx.Done():
			return 0, shared.ErrCancelled
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > serviceBackoffMax {
			backoff = serviceBackoffMax
		}
	}
}

// IsParallel reports false: the remote service is driven by a single
// long-poll loop, so a caller gains nothing by also wrapping Prove in
// its own pool.
func (s *ServiceProver) IsParallel() bool { return false }

func (s *ServiceProver) poll(ctx context.Context, uri string) (witness uint64, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return 0, false, shared.NewInternalError("building pow service request", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, shared.NewInternalError("pow service request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, false, shared.NewInternalError("reading pow service response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		w, err := strconv.ParseUint(string(body), 10, 64)
		if err != nil {
			return 0, false, shared.NewInternalError("parsing pow service witness", err)
		}
		return w, false, nil
	case http.StatusInternalServerError:
		return 0, false, shared.NewInternalError("pow service error: "+string(body), nil)
	case http.StatusCreated, http.StatusTooManyRequests:
		return 0, true, nil
	default:
		return 0, false, shared.NewInternalError(fmt.Sprintf("pow service returned unexpected status %d", resp.StatusCode), nil)
	}
}
