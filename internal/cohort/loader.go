package cohort

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"normative/internal/blob"
)

// Column names of the dataset files.
const (
	ParticipantIDColumn = "participant_id"
	AgeColumn           = "Age"
	GenderColumn        = "Gender"
	DiagnosisColumn     = "Diagn"
	ICVColumn           = "EstimatedTotalIntraCranialVol"
)

// Loader joins participants.tsv and freesurferData.csv from the data store
// with an ID filter file from the outputs store.
type Loader struct {
	Data     blob.Store
	Outputs  blob.Store
	Features []string
	Log      *zap.Logger
}

// ParticipantsKey is the data store key of a dataset's participant table.
func ParticipantsKey(dataset string) string { return path.Join(dataset, "participants.tsv") }

// FreesurferKey is the data store key of a dataset's imaging feature table.
func FreesurferKey(dataset string) string { return path.Join(dataset, "freesurferData.csv") }

type participant struct {
	id        string
	age       float64
	gender    int
	diagnosis int
}

// Load returns the subjects listed in idsKey that appear in both dataset
// files. Cohort order follows the ID file.
func (l *Loader) Load(ctx context.Context, dataset, idsKey string) (*Cohort, error) {
	log := l.Log
	if log == nil {
		log = zap.NewNop()
	}
	features := l.Features
	if len(features) == 0 {
		features = DefaultFeatures()
	}
	ids, err := ReadIDs(ctx, l.Outputs, idsKey)
	if err != nil {
		return nil, err
	}
	parts, err := l.readParticipants(ctx, dataset)
	if err != nil {
		return nil, err
	}
	imaging, err := l.readFreesurfer(ctx, dataset, features)
	if err != nil {
		return nil, err
	}
	subjects := make([]Subject, 0, len(ids))
	var missing int
	for _, imageID := range ids {
		p, okP := parts[imageID]
		row, okF := imaging[imageID]
		if !okP || !okF {
			missing++
			continue
		}
		subjects = append(subjects, Subject{
			ParticipantID: p.id,
			ImageID:       imageID,
			Age:           p.age,
			Gender:        p.gender,
			Diagnosis:     p.diagnosis,
			ICV:           row[0],
			Features:      row[1:],
		})
	}
	if missing > 0 {
		log.Debug("ids without matching rows dropped", zap.String("ids", idsKey), zap.Int("dropped", missing))
	}
	c, err := New(subjects)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataset, err)
	}
	log.Info("cohort loaded", zap.String("dataset", dataset), zap.Int("subjects", c.Len()), zap.Int("features", len(features)))
	return c, nil
}

func (l *Loader) readParticipants(ctx context.Context, dataset string) (map[string]participant, error) {
	t, err := readTable(ctx, l.Data, ParticipantsKey(dataset), '\t')
	if err != nil {
		return nil, err
	}
	cols, err := t.require(ParticipantIDColumn, ImageIDColumn, AgeColumn, GenderColumn, DiagnosisColumn)
	if err != nil {
		return nil, err
	}
	out := make(map[string]participant, len(t.rows))
	for i := range t.rows {
		p := participant{id: t.str(i, cols[0])}
		imageID := t.str(i, cols[1])
		if p.age, err = t.float(i, cols[2], AgeColumn); err != nil {
			return nil, err
		}
		if p.gender, err = t.code(i, cols[3], GenderColumn); err != nil {
			return nil, err
		}
		if p.diagnosis, err = t.code(i, cols[4], DiagnosisColumn); err != nil {
			return nil, err
		}
		if _, dup := out[imageID]; dup {
			return nil, fmt.Errorf("%s:%d: duplicate %s %q", t.key, t.lines[i], ImageIDColumn, imageID)
		}
		out[imageID] = p
	}
	return out, nil
}

// readFreesurfer returns ICV followed by the feature values per image ID.
func (l *Loader) readFreesurfer(ctx context.Context, dataset string, features []string) (map[string][]float64, error) {
	t, err := readTable(ctx, l.Data, FreesurferKey(dataset), ',')
	if err != nil {
		return nil, err
	}
	names := append([]string{ImageIDColumn, ICVColumn}, features...)
	cols, err := t.require(names...)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(t.rows))
	for i := range t.rows {
		imageID := t.str(i, cols[0])
		vals := make([]float64, len(cols)-1)
		for j, c := range cols[1:] {
			if vals[j], err = t.float(i, c, names[j+1]); err != nil {
				return nil, err
			}
		}
		if _, dup := out[imageID]; dup {
			return nil, fmt.Errorf("%s:%d: duplicate %s %q", t.key, t.lines[i], ImageIDColumn, imageID)
		}
		out[imageID] = vals
	}
	return out, nil
}
