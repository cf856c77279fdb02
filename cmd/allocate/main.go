package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/models"
)

// rosterFile accepts either ready-made batches or divisions to expand.
type rosterFile struct {
	allocator.Roster
	Divisions []models.Division `json:"divisions"`
}

type options struct {
	rosterPath string
	outPath    string
	teachers   bool
	rooms      bool
	indent     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.rosterPath, "roster", "", "path to a roster JSON file")
	flag.StringVar(&opts.outPath, "out", "", "write the snapshot here instead of stdout")
	flag.BoolVar(&opts.teachers, "teachers", true, "auto-assign teachers")
	flag.BoolVar(&opts.rooms, "rooms", true, "auto-assign rooms")
	flag.BoolVar(&opts.indent, "indent", true, "indent JSON output")
	flag.Parse()

	logr, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if opts.rosterPath == "" {
		logr.Fatal("missing -roster")
	}

	in, err := os.Open(opts.rosterPath)
	if err != nil {
		logr.Fatal("open roster", zap.Error(err))
	}
	defer in.Close()

	roster, err := readRoster(in)
	if err != nil {
		logr.Fatal("read roster", zap.String("path", opts.rosterPath), zap.Error(err))
	}

	snapshot := allocate(roster, opts, logr)

	out := io.Writer(os.Stdout)
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			logr.Fatal("create output", zap.Error(err))
		}
		defer f.Close()
		out = f
	}
	if err := writeSnapshot(out, snapshot, opts.indent); err != nil {
		logr.Fatal("write snapshot", zap.Error(err))
	}
}

func readRoster(r io.Reader) (allocator.Roster, error) {
	var file rosterFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return allocator.Roster{}, fmt.Errorf("decode roster: %w", err)
	}
	roster := file.Roster
	if len(roster.Batches) == 0 {
		roster.Batches = allocator.BatchesFromDivisions(file.Divisions)
	}
	if len(roster.Subjects) == 0 {
		return allocator.Roster{}, errors.New("roster has no subjects")
	}
	return roster, nil
}

func allocate(roster allocator.Roster, opts options, logr *zap.Logger) allocator.Snapshot {
	teachers := allocator.NewTeacherLoadAllocator(roster)
	rooms := allocator.NewRoomBatchAllocator(roster)

	if opts.teachers {
		result := teachers.AutoAssign()
		logr.Info("teachers assigned", zap.Int("assignments", result.Assignments), zap.Strings("unassigned", result.Unassigned))
	}
	rooms.AttachTeachers(teachers.PrimaryTeachers())
	if opts.rooms {
		result := rooms.AutoAssignRooms()
		logr.Info("rooms assigned", zap.Int("assigned", result.Assigned), zap.Int("unassigned", len(result.Unassigned)))
	}
	return allocator.Finalize(teachers, rooms)
}

func writeSnapshot(w io.Writer, snapshot allocator.Snapshot, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(snapshot)
}
