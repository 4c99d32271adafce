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

package mtconnect

import "github.com/carverauto/mtconnect-flattener/pkg/models"

// QualifyingStreams returns the device streams whose items of the given kind may be
// flattened. A device stream qualifies only when it has at least one component stream
// and every one of its component streams has at least one item of that kind; a single
// component without items excludes the whole device for that kind.
func QualifyingStreams(streams []models.DeviceStream, kind models.RecordKind) []models.DeviceStream {
	var qualifying []models.DeviceStream

	for i := range streams {
		if qualifies(&streams[i], kind) {
			qualifying = append(qualifying, streams[i])
		}
	}

	return qualifying
}

// CountItems returns the number of items of the given kind across all component
// streams of the given device streams.
func CountItems(streams []models.DeviceStream, kind models.RecordKind) int {
	total := 0

	for i := range streams {
		for j := range streams[i].Components {
			total += itemCount(&streams[i].Components[j], kind)
		}
	}

	return total
}

func qualifies(ds *models.DeviceStream, kind models.RecordKind) bool {
	if len(ds.Components) == 0 {
		return false
	}

	for i := range ds.Components {
		if itemCount(&ds.Components[i], kind) == 0 {
			return false
		}
	}

	return true
}

func itemCount(cs *models.ComponentStream, kind models.RecordKind) int {
	switch kind {
	case models.RecordKindEvent:
		return len(cs.Events)
	case models.RecordKindSample:
		return len(cs.Samples)
	default:
		return 0
	}
}
