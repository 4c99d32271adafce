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

// RecordKind identifies one of the two flat output streams.
type RecordKind string

const (
	RecordKindEvent  RecordKind = "event"
	RecordKindSample RecordKind = "sample"
)

// EventRecord is one MTConnect event denormalized with its device and component context.
type EventRecord struct {
	ID              string     `json:"id"`
	HourWindow      time.Time  `json:"hourWindow"`
	DeviceName      *string    `json:"deviceName"`
	DeviceID        *string    `json:"deviceId"`
	Component       *string    `json:"component"`
	ComponentName   *string    `json:"componentName"`
	ComponentID     *string    `json:"componentId"`
	EventDataItemID *string    `json:"eventDataItemId"`
	EventTimestamp  *time.Time `json:"eventTimestamp"`
	EventName       *string    `json:"eventName"`
	EventSequence   *string    `json:"eventSequence"`
	EventSubtype    *string    `json:"eventSubtype"`
	EventValue      *string    `json:"eventValue"`
}

// SampleRecord is one MTConnect sample denormalized with its device and component context.
type SampleRecord struct {
	ID                      string     `json:"id"`
	HourWindow              time.Time  `json:"hourWindow"`
	DeviceName              *string    `json:"deviceName"`
	DeviceID                *string    `json:"deviceId"`
	Component               *string    `json:"component"`
	ComponentName           *string    `json:"componentName"`
	ComponentID             *string    `json:"componentId"`
	SampleDataItemID        *string    `json:"sampleDataItemId"`
	SampleTimestamp         *time.Time `json:"sampleTimestamp"`
	SampleName              *string    `json:"sampleName"`
	SampleSequence          *string    `json:"sampleSequence"`
	SampleSubtype           *string    `json:"sampleSubtype"`
	SampleDuration          *float32   `json:"sampleDuration"`
	SampleDurationSpecified *bool      `json:"sampleDurationSpecified"`
	SampleRate              *string    `json:"sampleRate"`
	SampleStatistic         *string    `json:"sampleStatistic"`
	SampleValue             *string    `json:"sampleValue"`
}

// RecordID returns the record identity.
func (r EventRecord) RecordID() string { return r.ID }

// RecordID returns the record identity.
func (r SampleRecord) RecordID() string { return r.ID }
