package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentBinds_QuotaNeverExceeded fires many concurrent bind requests
// against a single-machine quota. The transactor serializes the lock-check-
// write section the same way the user row lock does in Postgres, so exactly
// one bind may win regardless of interleaving.
func TestConcurrentBinds_QuotaNeverExceeded(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "race@example.com")
	registerDevice(t, app, token, "dev-race-1")
	activateSubscription(t, app, token, "basic_monthly") // quota: 1 machine

	concurrency := 10
	var wg sync.WaitGroup
	var successCount atomic.Int64
	var quotaDenied atomic.Int64
	var otherCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			// Each goroutine targets a different unbound machine, so the
			// only thing stopping them is the subscription quota.
			serial := fmt.Sprintf("AUR-%04d", idx+1)
			body := fmt.Sprintf(`{"device_uuid":"dev-race-1","serial_number":"%s"}`, serial)

			req, _ := http.NewRequest("POST", app.server.URL+"/api/v1/machines/bind", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			r, err := http.DefaultClient.Do(req)
			if err != nil {
				otherCount.Add(1)
				return
			}
			defer r.Body.Close()

			switch r.StatusCode {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusForbidden:
				var resp struct {
					ErrorCode string `json:"error_code"`
				}
				if err := json.NewDecoder(r.Body).Decode(&resp); err == nil && resp.ErrorCode == "SUB_002" {
					quotaDenied.Add(1)
				} else {
					otherCount.Add(1)
				}
			default:
				_, _ = io.ReadAll(r.Body)
				otherCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	t.Logf("Concurrent binds: %d succeeded, %d quota-denied, %d other (out of %d)",
		successCount.Load(), quotaDenied.Load(), otherCount.Load(), concurrency)

	assert.Equal(t, int64(1), successCount.Load(), "exactly one bind may pass a quota of one")
	assert.Equal(t, int64(concurrency-1), quotaDenied.Load(), "every other bind is denied with the limit error")
	assert.Equal(t, int64(0), otherCount.Load())

	// The store agrees: a single machine carries this user's binding
	listReq, _ := http.NewRequest("GET", app.server.URL+"/api/v1/machines", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(listReq)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listBody struct {
		Data []struct {
			SerialNumber string `json:"serial_number"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
	assert.Len(t, listBody.Data, 1)
}

// TestConcurrentSameMachineBinds verifies that racing binds for one serial
// cannot double-claim it: the winner binds, later attempts from the same
// user are no-ops and attempts for an already-claimed machine stay denied.
func TestConcurrentSameMachineBinds(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	token := registerAndLogin(t, app, "same@example.com")
	registerDevice(t, app, token, "dev-same-1")
	activateSubscription(t, app, token, "family_monthly")

	concurrency := 8
	var wg sync.WaitGroup
	var okCount atomic.Int64

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			body := `{"device_uuid":"dev-same-1","serial_number":"AUR-0009"}`
			req, _ := http.NewRequest("POST", app.server.URL+"/api/v1/machines/bind", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)

			r, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			defer r.Body.Close()
			_, _ = io.ReadAll(r.Body)

			if r.StatusCode == http.StatusOK {
				okCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Rebinding your own machine is idempotent, so every request succeeds —
	// but only one machine may be bound at the end.
	assert.Equal(t, int64(concurrency), okCount.Load())

	listReq, _ := http.NewRequest("GET", app.server.URL+"/api/v1/machines", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(listReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	var listBody struct {
		Data []struct {
			SerialNumber string `json:"serial_number"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listBody))
	require.Len(t, listBody.Data, 1)
	assert.Equal(t, "AUR-0009", listBody.Data[0].SerialNumber)
}
