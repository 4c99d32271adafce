/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpcstats "google.golang.org/grpc/stats"

	"github.com/carverauto/mtconnect-flattener/pkg/logger"
)

type fakeService struct {
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	stopErr  error
}

func (f *fakeService) Start(context.Context) error {
	f.started.Store(true)
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.stopped.Store(true)
	return f.stopErr
}

func TestRunServer_RequiresService(t *testing.T) {
	err := RunServer(context.Background(), &ServerOptions{})
	require.ErrorIs(t, err, errServiceRequired)

	err = RunServer(context.Background(), nil)
	require.ErrorIs(t, err, errServiceRequired)
}

func TestRunServer_StartFailure(t *testing.T) {
	svc := &fakeService{startErr: errors.New("boom")}

	err := RunServer(context.Background(), &ServerOptions{Service: svc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start service")
	assert.False(t, svc.stopped.Load())
}

func TestRunServer_StopsOnCancel(t *testing.T) {
	svc := &fakeService{}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- RunServer(ctx, &ServerOptions{
			ListenAddr:        "127.0.0.1:0",
			ServiceName:       "mtconnect-flattener",
			Service:           svc,
			EnableHealthCheck: true,
			MetricsAddr:       "127.0.0.1:0",
			MetricsHandler:    http.NotFoundHandler(),
			ShutdownTimeout:   time.Second,
			Logger:            logger.NewTestLogger(),
		})
	}()

	require.Eventually(t, svc.started.Load, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunServer did not return after cancellation")
	}

	assert.True(t, svc.stopped.Load())
}

func TestRunServer_StopErrorReported(t *testing.T) {
	svc := &fakeService{stopErr: errors.New("stuck")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunServer(ctx, &ServerOptions{Service: svc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop service")
}

func TestCreateComponentLogger(t *testing.T) {
	l, err := CreateComponentLogger("flattener", &logger.Config{Level: "debug", Output: "stderr"})
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = CreateComponentLogger("flattener", &logger.Config{Level: "loud"})
	require.Error(t, err)
}

func TestUntracedHealthChecks(t *testing.T) {
	assert.False(t, untracedHealthChecks(&grpcstats.RPCTagInfo{FullMethodName: "/grpc.health.v1.Health/Check"}))
	assert.False(t, untracedHealthChecks(&grpcstats.RPCTagInfo{FullMethodName: "/grpc.health.v1.Health/Watch"}))
	assert.True(t, untracedHealthChecks(&grpcstats.RPCTagInfo{FullMethodName: "/mtconnect.Flattener/Flatten"}))
}
