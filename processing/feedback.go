package processing

import "log"

const progressLogStep = 10

// LogFeedback logs info messages and the progress in steps of 10%
type LogFeedback struct {
	lastLogged int
}

func (f *LogFeedback) SetProgress(percent int) {
	if percent/progressLogStep > f.lastLogged/progressLogStep {
		log.Printf("    %3d%%", percent)
	}
	f.lastLogged = percent
}

func (f *LogFeedback) PushInfo(msg string) {
	log.Println(msg)
}

type noFeedback struct{}

func (noFeedback) SetProgress(int) {}

func (noFeedback) PushInfo(string) {}
