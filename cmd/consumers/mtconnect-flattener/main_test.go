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

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flattener "github.com/carverauto/mtconnect-flattener/pkg/consumers/mtconnect-flattener"
)

const agentDocument = `<?xml version="1.0" encoding="UTF-8"?>
<MTConnectStreams>
  <Streams>
    <DeviceStream name="Mill1" uuid="d1">
      <ComponentStream component="Controller" name="controller" uuid="c-a">
        <Events>
          <Execution dataItemId="exec" timestamp="2023-05-01T10:15:00" sequence="1">ACTIVE</Execution>
        </Events>
        <Samples>
          <SpindleSpeed dataItemId="sspeed" timestamp="2023-05-01T10:15:00.5" sequence="2">1200</SpindleSpeed>
        </Samples>
      </ComponentStream>
    </DeviceStream>
  </Streams>
</MTConnectStreams>`

func TestRunOnceWritesEventsThenSamples(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mill1.xml"), []byte(agentDocument), 0o600))

	var out bytes.Buffer
	require.NoError(t, runOnce(context.Background(), dir, "mill1.xml", "deterministic", &out))

	var lines []map[string]any

	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}

	require.Len(t, lines, 2)
	assert.Equal(t, "ACTIVE", lines[0]["eventValue"])
	assert.Equal(t, "1200", lines[1]["sampleValue"])
	assert.Equal(t, "2023-05-01T10:00:00Z", lines[1]["hourWindow"])
}

func TestRunOnceFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.xml"), []byte("<MTConnectStreams>"), 0o600))

	var out bytes.Buffer

	err := runOnce(context.Background(), dir, "broken.xml", "", &out)
	require.ErrorIs(t, err, errParseFailed)

	err = runOnce(context.Background(), dir, "missing.xml", "", &out)
	require.ErrorIs(t, err, flattener.ErrDocumentNotFound)

	err = runOnce(context.Background(), dir, "broken.xml", "sequential", &out)
	require.Error(t, err)

	assert.Zero(t, out.Len())
}
