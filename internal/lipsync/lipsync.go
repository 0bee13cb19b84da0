// Package lipsync generates viseme timelines for lip-sync animation.
// A timeline is a pure function of the input text: identical text always
// yields an identical sequence, which lets the animation clock start
// before (or without) any synthesized audio.
package lipsync

import (
	"strings"
	"unicode"
)

// Mouth shape tags consumed by the renderer.
const (
	ShapeJawOpen     = "jawOpen"
	ShapeMouthSmile  = "mouthSmile"
	ShapeMouthFunnel = "mouthFunnel"
	ShapeMouthClose  = "mouthClose"
	ShapeMouthPucker = "mouthPucker"
)

// Viseme is a single timed mouth-shape event.
type Viseme struct {
	Time     float64 `json:"time"`     // seconds from utterance start
	Shape    string  `json:"shape"`    // mouth shape tag
	Weight   float64 `json:"weight"`   // intensity 0..1
	Duration float64 `json:"duration"` // seconds until the next event
}

// wordGapDuration is the brief closure inserted between words.
const wordGapDuration = 0.08

type visemeSpec struct {
	shape    string
	weight   float64
	duration float64
}

// visemeTable maps characters to mouth shapes with base weight and
// duration. Vowels open the jaw (or smile/funnel), bilabials close the
// lips, everything else falls back to a neutral closure.
var visemeTable = map[rune]visemeSpec{
	'a': {ShapeJawOpen, 0.9, 0.11},
	'i': {ShapeJawOpen, 0.75, 0.09},
	'u': {ShapeJawOpen, 0.8, 0.1},
	'e': {ShapeMouthSmile, 0.7, 0.1},
	'o': {ShapeMouthFunnel, 0.85, 0.12},
	'b': {ShapeMouthClose, 0.6, 0.06},
	'm': {ShapeMouthClose, 0.65, 0.08},
	'p': {ShapeMouthClose, 0.6, 0.06},
	'f': {ShapeMouthPucker, 0.7, 0.08},
	'v': {ShapeMouthPucker, 0.75, 0.08},
	't': {ShapeJawOpen, 0.65, 0.07},
	'd': {ShapeJawOpen, 0.65, 0.07},
	's': {ShapeMouthSmile, 0.65, 0.09},
	'r': {ShapeMouthSmile, 0.55, 0.09},
	'l': {ShapeMouthSmile, 0.6, 0.08},
}

var defaultSpec = visemeSpec{ShapeMouthClose, 0.5, 0.06}

// Generate converts text to an ordered viseme timeline. Each character
// contributes one event; a short closure is appended after every word.
func Generate(text string) []Viseme {
	var visemes []Viseme
	currentTime := 0.0

	for _, word := range strings.Fields(text) {
		for _, r := range word {
			spec, ok := visemeTable[unicode.ToLower(r)]
			if !ok {
				spec = defaultSpec
			}
			visemes = append(visemes, Viseme{
				Time:     currentTime,
				Shape:    spec.shape,
				Weight:   spec.weight,
				Duration: spec.duration,
			})
			currentTime += spec.duration
		}
		// brief closure between words
		visemes = append(visemes, Viseme{
			Time:     currentTime,
			Shape:    ShapeMouthClose,
			Weight:   0.4,
			Duration: wordGapDuration,
		})
		currentTime += wordGapDuration
	}

	return visemes
}

// TotalDuration returns the wall-clock length of a timeline in seconds.
func TotalDuration(visemes []Viseme) float64 {
	if len(visemes) == 0 {
		return 0
	}
	last := visemes[len(visemes)-1]
	return last.Time + last.Duration
}

// SampleAt returns the viseme whose interval [Time, Time+Duration)
// contains t. Before the first event it returns the first; after the
// last interval it returns false.
func SampleAt(visemes []Viseme, t float64) (Viseme, bool) {
	if len(visemes) == 0 {
		return Viseme{}, false
	}
	if t < visemes[0].Time {
		return visemes[0], true
	}
	for _, v := range visemes {
		if t >= v.Time && t < v.Time+v.Duration {
			return v, true
		}
	}
	return Viseme{}, false
}
