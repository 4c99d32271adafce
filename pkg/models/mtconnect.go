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

package models

import "time"

// Document is a parsed MTConnect Streams document. A nil Streams slice means
// the document carried no <Streams> element.
type Document struct {
	Streams []DeviceStream
}

// DeviceStream groups the telemetry of one device.
type DeviceStream struct {
	Name       *string
	UUID       *string
	Components []ComponentStream
}

// ComponentStream groups the telemetry items reported by one component of a device.
type ComponentStream struct {
	Component *string
	Name      *string
	UUID      *string
	Events    []Event
	Samples   []Sample
}

// Event is a discrete observation such as an execution state or a program name.
type Event struct {
	DataItemID *string
	Name       *string
	Sequence   *string
	SubType    *string
	Value      *string
	Timestamp  time.Time
}

// Sample is a numeric observation. Duration and DurationSpecified are both nil
// when the source element carried no duration attribute.
type Sample struct {
	DataItemID        *string
	Name              *string
	Sequence          *string
	SubType           *string
	Statistic         *string
	SampleRate        *string
	Value             *string
	Duration          *float32
	DurationSpecified *bool
	Timestamp         time.Time
}
