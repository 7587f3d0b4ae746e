// Command issq answers ephemeris queries against a local OEM file without
// running the service.
//
//	issq -f ISS.OEM_J2K_EPH.xml -at 2024-045T12:00:00.000Z -frame j2000
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/star/issgo/internal/ephemeris"
	"github.com/star/issgo/internal/logging"
	"github.com/star/issgo/internal/oem"
	"github.com/star/issgo/internal/transform"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, time.Now))
}

type answer struct {
	Query         string                     `json:"query"`
	Epoch         string                     `json:"epoch"`
	Index         int                        `json:"index"`
	OffsetSeconds float64                    `json:"offset_seconds"`
	StateVector   ephemeris.StateVector      `json:"state_vector"`
	Speed         *float64                   `json:"speed,omitempty"`
	Frame         string                     `json:"frame"`
	Location      transform.GeodeticPosition `json:"location"`
	Skipped       int                        `json:"skipped"`
}

func run(args []string, stdout, stderr io.Writer, now func() time.Time) int {
	fs := flag.NewFlagSet("issq", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("f", "", "OEM XML file (required)")
	at := fs.String("at", ephemeris.Now, "epoch to resolve, "+ephemeris.EpochLayout+" or NOW")
	frameName := fs.String("frame", "", "frame of the state vectors: j2000, teme or ecef (default: REF_FRAME)")
	verbose := fs.Bool("v", false, "log skipped samples")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "issq: -f is required")
		fs.Usage()
		return 2
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	logger := logging.New(stderr, level, "text")

	if err := query(*file, *at, *frameName, stdout, logger, now); err != nil {
		fmt.Fprintln(stderr, "issq:", err)
		return 1
	}
	return 0
}

func query(path, at, frameName string, stdout io.Writer, logger *slog.Logger, now func() time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := oem.Decode(f)
	if err != nil {
		return err
	}

	frame, err := transform.LookupFrame(frameName, doc.Metadata.RefFrame)
	if err != nil {
		return err
	}

	res, err := ephemeris.NewResolver(logger, ephemeris.WithClock(now)).Scan(at, doc.StateVectors)
	if err != nil {
		return err
	}
	if !res.Found {
		return errors.New("no state vector with a usable epoch")
	}

	pos, err := ephemeris.Position(res.State)
	if err != nil {
		return err
	}
	loc, err := frame.Projector.Project(pos, res.Epoch)
	if err != nil {
		return err
	}

	out := answer{
		Query:         at,
		Epoch:         ephemeris.FormatEpoch(res.Epoch),
		Index:         res.Index,
		OffsetSeconds: res.Distance.Seconds(),
		StateVector:   res.State,
		Frame:         frame.Name,
		Location:      loc,
		Skipped:       len(res.Skipped),
	}
	// A missing velocity only drops the speed.
	if speed, err := ephemeris.Speed(res.State); err == nil {
		out.Speed = &speed
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
