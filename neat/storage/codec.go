// Package storage provides checkpoint stores beyond the file store of package neat.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/baldhumanity/neat-medoids/neat"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

type checkpointRecord struct {
	SchemaVersion int              `json:"schema_version"`
	CodecVersion  int              `json:"codec_version"`
	Checkpoint    *neat.Checkpoint `json:"checkpoint"`
}

// EncodeCheckpoint serializes cp as versioned JSON.
func EncodeCheckpoint(cp *neat.Checkpoint) ([]byte, error) {
	data, err := json.Marshal(checkpointRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
		Checkpoint:    cp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint of run %q generation %d: %w", cp.Name, cp.Generation, err)
	}
	return data, nil
}

// DecodeCheckpoint parses data written by EncodeCheckpoint. Malformed data and
// unknown versions are reported as neat.ErrCheckpointCorrupt.
func DecodeCheckpoint(data []byte) (*neat.Checkpoint, error) {
	var rec checkpointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", neat.ErrCheckpointCorrupt, err)
	}
	if err := checkVersion(rec.SchemaVersion, rec.CodecVersion); err != nil {
		return nil, err
	}
	if rec.Checkpoint == nil {
		return nil, fmt.Errorf("%w: record holds no checkpoint", neat.ErrCheckpointCorrupt)
	}
	return rec.Checkpoint, nil
}

func checkVersion(schema, codec int) error {
	if schema != CurrentSchemaVersion || codec != CurrentCodecVersion {
		return fmt.Errorf("%w: record version schema=%d codec=%d, want schema=%d codec=%d",
			neat.ErrCheckpointCorrupt, schema, codec, CurrentSchemaVersion, CurrentCodecVersion)
	}
	return nil
}
