package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// TraceHeader captures rollout metadata, written as YAML next to the CSV rows.
type TraceHeader struct {
	Version    int     `yaml:"trace_version"`
	RunID      string  `yaml:"run_id"`
	CreatedAt  string  `yaml:"created_at,omitempty"`
	Server     string  `yaml:"server"`
	Seed       int64   `yaml:"seed"`
	Episodes   int     `yaml:"episodes"`
	MaxSteps   int     `yaml:"max_steps,omitempty"`
	Level      string  `yaml:"level"`
	Policy     string  `yaml:"policy"`
	AllyWeight float64 `yaml:"ally_drop_weight"`

	Summary *TraceSummary `yaml:"summary,omitempty"`
}

// Loaded combines header and records for a complete trace.
type Loaded struct {
	Header   TraceHeader
	Episodes []EpisodeRecord
	Steps    []StepRecord
}

// CSV column headers. Each data row is tagged episode or step in the first
// column; columns that do not apply to the row kind are left empty.
var traceColumns = []string{
	"kind", "episode", "step", "seed", "card_idx", "tile_idx", "reward",
	"ally_elixir", "time_left", "terminated", "steps", "return", "outcome",
}

const (
	rowEpisode = "episode"
	rowStep    = "step"
)

// Export writes the trace header (YAML) and the records (CSV) to separate files.
func Export(header *TraceHeader, rt *RolloutTrace, headerPath, dataPath string) error {
	headerData, err := yaml.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling trace header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating trace data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(traceColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, s := range rt.Steps {
		row := []string{
			rowStep,
			strconv.Itoa(s.Episode),
			strconv.Itoa(s.Step),
			"",
			strconv.Itoa(s.CardIdx),
			strconv.Itoa(s.TileIdx),
			formatFloat(s.Reward),
			formatFloat(s.AllyElixir),
			formatFloat(s.TimeLeft),
			strconv.FormatBool(s.Terminated),
			"", "", "",
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV step row %d/%d: %w", s.Episode, s.Step, err)
		}
	}
	for _, e := range rt.Episodes {
		row := []string{
			rowEpisode,
			strconv.Itoa(e.Episode),
			"",
			strconv.FormatUint(e.Seed, 10),
			"", "", "", "", "", "",
			strconv.Itoa(e.Steps),
			formatFloat(e.Return),
			string(e.Outcome),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV episode row %d: %w", e.Episode, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing trace data: %w", err)
	}
	return nil
}

// Load reads a trace header (YAML) and data (CSV) written by Export.
func Load(headerPath, dataPath string) (*Loaded, error) {
	headerData, err := os.ReadFile(headerPath)
	if err != nil {
		return nil, fmt.Errorf("reading trace header: %w", err)
	}
	var header TraceHeader
	if err := yaml.Unmarshal(headerData, &header); err != nil {
		return nil, fmt.Errorf("parsing trace header: %w", err)
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("opening trace data: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	loaded := &Loaded{Header: header}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		if len(row) != len(traceColumns) {
			return nil, fmt.Errorf("CSV line %d has %d columns, expected %d", line, len(row), len(traceColumns))
		}
		switch row[0] {
		case rowStep:
			s, err := parseStep(row)
			if err != nil {
				return nil, fmt.Errorf("CSV line %d: %w", line, err)
			}
			loaded.Steps = append(loaded.Steps, s)
		case rowEpisode:
			e, err := parseEpisode(row)
			if err != nil {
				return nil, fmt.Errorf("CSV line %d: %w", line, err)
			}
			loaded.Episodes = append(loaded.Episodes, e)
		default:
			return nil, fmt.Errorf("CSV line %d: unknown row kind %q", line, row[0])
		}
	}
	return loaded, nil
}

func parseStep(row []string) (StepRecord, error) {
	var s StepRecord
	var err error
	if s.Episode, err = strconv.Atoi(row[1]); err != nil {
		return s, fmt.Errorf("episode: %w", err)
	}
	if s.Step, err = strconv.Atoi(row[2]); err != nil {
		return s, fmt.Errorf("step: %w", err)
	}
	if s.CardIdx, err = strconv.Atoi(row[4]); err != nil {
		return s, fmt.Errorf("card_idx: %w", err)
	}
	if s.TileIdx, err = strconv.Atoi(row[5]); err != nil {
		return s, fmt.Errorf("tile_idx: %w", err)
	}
	if s.Reward, err = strconv.ParseFloat(row[6], 64); err != nil {
		return s, fmt.Errorf("reward: %w", err)
	}
	if s.AllyElixir, err = strconv.ParseFloat(row[7], 64); err != nil {
		return s, fmt.Errorf("ally_elixir: %w", err)
	}
	if s.TimeLeft, err = strconv.ParseFloat(row[8], 64); err != nil {
		return s, fmt.Errorf("time_left: %w", err)
	}
	if s.Terminated, err = strconv.ParseBool(row[9]); err != nil {
		return s, fmt.Errorf("terminated: %w", err)
	}
	return s, nil
}

func parseEpisode(row []string) (EpisodeRecord, error) {
	var e EpisodeRecord
	var err error
	if e.Episode, err = strconv.Atoi(row[1]); err != nil {
		return e, fmt.Errorf("episode: %w", err)
	}
	if e.Seed, err = strconv.ParseUint(row[3], 10, 64); err != nil {
		return e, fmt.Errorf("seed: %w", err)
	}
	if e.Steps, err = strconv.Atoi(row[10]); err != nil {
		return e, fmt.Errorf("steps: %w", err)
	}
	if e.Return, err = strconv.ParseFloat(row[11], 64); err != nil {
		return e, fmt.Errorf("return: %w", err)
	}
	e.Outcome = Outcome(row[12])
	return e, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
