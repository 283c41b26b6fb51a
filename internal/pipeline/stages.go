package pipeline

import (
	"errors"
	"fmt"
	"sort"
)

// Stage names a step of dream processing.
type Stage string

// Processing stages in execution order.
const (
	StageTranscription Stage = "transcription"
	StageEmotion       Stage = "emotion"
	StageImagePrompt   Stage = "image_prompt"
	StageImage         Stage = "image"
	StageFinalize      Stage = "finalize"
	StageMessage       Stage = "message"
	// StageInternal covers failures outside any stage, such as a panic.
	StageInternal Stage = "internal"
)

// StageDefinition describes a stage and how its failure is treated.
type StageDefinition struct {
	Name  Stage
	Order int
	// Fatal stages abort the dream on failure. The others fall back.
	Fatal        bool
	Label        string
	Dependencies []Stage
}

// StageRegistry holds every processing stage.
var StageRegistry = map[Stage]StageDefinition{
	StageTranscription: {
		Name:  StageTranscription,
		Order: 1,
		Fatal: true,
		Label: "Transcribing audio",
	},
	StageEmotion: {
		Name:         StageEmotion,
		Order:        2,
		Label:        "Detecting emotion",
		Dependencies: []Stage{StageTranscription},
	},
	StageImagePrompt: {
		Name:         StageImagePrompt,
		Order:        3,
		Fatal:        true,
		Label:        "Writing image prompt",
		Dependencies: []Stage{StageTranscription},
	},
	StageImage: {
		Name:         StageImage,
		Order:        4,
		Fatal:        true,
		Label:        "Generating image",
		Dependencies: []Stage{StageImagePrompt},
	},
	StageFinalize: {
		Name:         StageFinalize,
		Order:        5,
		Fatal:        true,
		Label:        "Finalizing",
		Dependencies: []Stage{StageImage},
	},
	StageMessage: {
		Name:         StageMessage,
		Order:        6,
		Label:        "Writing personal message",
		Dependencies: []Stage{StageFinalize},
	},
}

// OrderedStages returns the registry in execution order.
func OrderedStages() []StageDefinition {
	defs := make([]StageDefinition, 0, len(StageRegistry))
	for _, def := range StageRegistry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Order < defs[j].Order })
	return defs
}

// StageError records which stage failed a dream. Its message is what gets
// stored as the dream's error message.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if def, ok := StageRegistry[e.Stage]; ok {
		return fmt.Sprintf("%s failed (stage %d/%d): %v", e.Stage, def.Order, len(StageRegistry), e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
