// Package feed turns recorded report streams into envelope channels for
// replay into the pipeline.
package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coastwatch/aistracker/errs"
	"github.com/coastwatch/aistracker/internal/schema"
)

// record is the wire form of one replayed report. Only the fields matching
// the record type are read.
type record struct {
	Type      string  `json:"type"`
	MMSI      int64   `json:"mmsi"`
	Timestamp int64   `json:"ts"`
	Provider  string  `json:"provider,omitempty"`
	Channel   string  `json:"channel,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	COG       float64 `json:"cog,omitempty"`
	SOG       float64 `json:"sog,omitempty"`
	NavStatus uint8   `json:"nav_status,omitempty"`
	ShipType  uint8   `json:"ship_type,omitempty"`
	Part      int     `json:"part,omitempty"`
	Name      string  `json:"name,omitempty"`
	CallSign  string  `json:"call_sign,omitempty"`
	Dest      string  `json:"dest,omitempty"`
}

// Replayer reads newline-delimited JSON report records and emits envelopes.
type Replayer struct {
	reader io.Reader
}

// NewReplayer wraps a record stream.
func NewReplayer(r io.Reader) *Replayer {
	return &Replayer{reader: r}
}

// Run decodes records until EOF or context cancellation. Malformed lines are
// reported on the error channel and skipped.
func (r *Replayer) Run(ctx context.Context) (<-chan schema.Envelope, <-chan error) {
	out := make(chan schema.Envelope)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		scanner := bufio.NewScanner(r.reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			env, err := decodeLine([]byte(text))
			if err != nil {
				select {
				case errCh <- fmt.Errorf("line %d: %w", line, err):
				default:
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- env:
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errCh <- fmt.Errorf("scan feed: %w", err):
			default:
			}
		}
	}()

	return out, errCh
}

func decodeLine(raw []byte) (schema.Envelope, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return schema.Envelope{}, errs.New("feed", errs.CodeDecode,
			errs.WithMessage("malformed feed record"), errs.WithCause(err))
	}
	rpt, kind, err := rec.report()
	if err != nil {
		return schema.Envelope{}, err
	}
	env := schema.Envelope{
		Report:    rpt,
		Raw:       append([]byte(nil), raw...),
		Kind:      kind,
		Timestamp: rec.Timestamp,
		Source:    schema.SourceKey{Provider: rec.Provider, Channel: rec.Channel},
	}
	if err := env.Validate(); err != nil {
		return schema.Envelope{}, err
	}
	return env, nil
}

func (r record) report() (schema.Report, schema.TargetKind, error) {
	pos := schema.Position{Lat: r.Lat, Lon: r.Lon}
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "position_a":
		return schema.PositionReportA{
			MMSI: r.MMSI, Pos: pos, COG: r.COG, SOG: r.SOG,
			NavStatus: schema.NavigationStatus(r.NavStatus),
		}, schema.KindVesselA, nil
	case "position_b":
		return schema.PositionReportB{MMSI: r.MMSI, Pos: pos, COG: r.COG, SOG: r.SOG}, schema.KindVesselB, nil
	case "static_voyage":
		return schema.StaticVoyageReport{
			MMSI: r.MMSI, ShipType: schema.ShipType(r.ShipType),
			Name: r.Name, CallSign: r.CallSign, Dest: r.Dest,
		}, schema.KindVesselA, nil
	case "static_data":
		return schema.StaticDataReport{
			MMSI: r.MMSI, Part: r.Part, ShipType: schema.ShipType(r.ShipType),
			Name: r.Name, CallSign: r.CallSign,
		}, schema.KindVesselB, nil
	case "aton":
		return schema.AidToNavigationReport{MMSI: r.MMSI, Pos: pos, Name: r.Name}, schema.KindAidToNavigation, nil
	case "base_station":
		return schema.BaseStationReport{MMSI: r.MMSI, Pos: pos}, schema.KindBaseStation, nil
	default:
		return nil, schema.KindUnknown, errs.New("feed", errs.CodeDecode,
			errs.WithMessage(fmt.Sprintf("unknown record type %q", r.Type)))
	}
}
