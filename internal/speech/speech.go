// Package speech models speech capture and synthesis and cleans reply text
// before it is spoken.
package speech

// Utterance is a piece of text handed to a Synthesizer
type Utterance struct {
	Text   string
	Rate   float64
	Pitch  float64
	Volume float64
}

// Synthesizer speaks utterances. Speak must return promptly and report
// completion (nil) or failure through done, at most once.
type Synthesizer interface {
	Speak(u Utterance, done func(err error))
	Cancel()
}

// Listener receives capture callbacks
type Listener interface {
	OnResult(transcript string)
	OnCaptureEnd()
	OnCaptureError(code string)
}

// Recognizer captures one utterance per Start, like a non-continuous
// browser recogniser. Results and the end of capture are reported to the
// Listener.
type Recognizer interface {
	Start(l Listener) error
	Stop()
}
