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

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/carverauto/mtconnect-flattener/pkg/models"
)

// streamsRoot is the only accepted root element. Its namespace is not checked.
const streamsRoot = "MTConnectStreams"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// zoneless timestamps are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Parse decodes an MTConnect Streams document. Empty or whitespace-only content
// returns ErrNoData. Any other failure, including a root element other than
// <MTConnectStreams>, wraps ErrMalformedDocument and no document
// is returned.
func Parse(raw []byte) (*models.Document, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNoData
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.NewReaderLabel

	var root documentXML

	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	if root.XMLName.Local != streamsRoot {
		return nil, fmt.Errorf("%w: unexpected root <%s>", ErrMalformedDocument, root.XMLName.Local)
	}

	if err := expectEOF(dec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDocument, err)
	}

	return root.document(), nil
}

// ParseTimestamp parses an MTConnect timestamp. A timestamp without a zone
// designator is interpreted as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", errInvalidTimestamp, value)
}

func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("%w: <%s>", errTrailingContent, t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return errTrailingContent
			}
		}
	}
}

type documentXML struct {
	XMLName xml.Name
	Streams *struct {
		Devices []deviceStreamXML `xml:"DeviceStream"`
	} `xml:"Streams"`
}

type deviceStreamXML struct {
	Name       *string              `xml:"name,attr"`
	UUID       *string              `xml:"uuid,attr"`
	Components []componentStreamXML `xml:"ComponentStream"`
}

type componentStreamXML struct {
	Component *string               `xml:"component,attr"`
	Name      *string               `xml:"name,attr"`
	UUID      *string               `xml:"uuid,attr"`
	Events    *itemBlock[eventXML]  `xml:"Events"`
	Samples   *itemBlock[sampleXML] `xml:"Samples"`
}

// itemBlock collects every child element regardless of its name: MTConnect
// names items by type (<Execution>, <Position>, ...).
type itemBlock[T any] struct {
	Items []T `xml:",any"`
}

type eventXML struct {
	DataItemID *string       `xml:"dataItemId,attr"`
	Name       *string       `xml:"name,attr"`
	Sequence   *string       `xml:"sequence,attr"`
	SubType    *string       `xml:"subType,attr"`
	Timestamp  timestampAttr `xml:"timestamp,attr"`
	Value      string        `xml:",chardata"`
}

type sampleXML struct {
	DataItemID *string       `xml:"dataItemId,attr"`
	Name       *string       `xml:"name,attr"`
	Sequence   *string       `xml:"sequence,attr"`
	SubType    *string       `xml:"subType,attr"`
	Statistic  *string       `xml:"statistic,attr"`
	SampleRate *string       `xml:"sampleRate,attr"`
	Duration   *float32      `xml:"duration,attr"`
	Timestamp  timestampAttr `xml:"timestamp,attr"`
	Value      string        `xml:",chardata"`
}

type timestampAttr struct {
	t time.Time
}

func (ts *timestampAttr) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := ParseTimestamp(attr.Value)
	if err != nil {
		return err
	}

	ts.t = parsed

	return nil
}

// itemValue leaves the value nil for items without character data.
func itemValue(v string) *string {
	if v == "" {
		return nil
	}

	return &v
}

func (d *documentXML) document() *models.Document {
	doc := &models.Document{}
	if d.Streams == nil {
		return doc
	}

	doc.Streams = make([]models.DeviceStream, 0, len(d.Streams.Devices))

	for i := range d.Streams.Devices {
		doc.Streams = append(doc.Streams, d.Streams.Devices[i].deviceStream())
	}

	return doc
}

func (d *deviceStreamXML) deviceStream() models.DeviceStream {
	ds := models.DeviceStream{Name: d.Name, UUID: d.UUID}

	if d.Components != nil {
		ds.Components = make([]models.ComponentStream, 0, len(d.Components))
	}

	for i := range d.Components {
		ds.Components = append(ds.Components, d.Components[i].componentStream())
	}

	return ds
}

func (c *componentStreamXML) componentStream() models.ComponentStream {
	cs := models.ComponentStream{
		Component: c.Component,
		Name:      c.Name,
		UUID:      c.UUID,
	}

	if c.Events != nil {
		cs.Events = make([]models.Event, 0, len(c.Events.Items))

		for _, e := range c.Events.Items {
			cs.Events = append(cs.Events, models.Event{
				DataItemID: e.DataItemID,
				Name:       e.Name,
				Sequence:   e.Sequence,
				SubType:    e.SubType,
				Value:      itemValue(e.Value),
				Timestamp:  e.Timestamp.t,
			})
		}
	}

	if c.Samples != nil {
		cs.Samples = make([]models.Sample, 0, len(c.Samples.Items))

		for _, s := range c.Samples.Items {
			sample := models.Sample{
				DataItemID: s.DataItemID,
				Name:       s.Name,
				Sequence:   s.Sequence,
				SubType:    s.SubType,
				Statistic:  s.Statistic,
				SampleRate: s.SampleRate,
				Value:      itemValue(s.Value),
				Duration:   s.Duration,
				Timestamp:  s.Timestamp.t,
			}

			if s.Duration != nil {
				specified := true
				sample.DurationSpecified = &specified
			}

			cs.Samples = append(cs.Samples, sample)
		}
	}

	return cs
}
