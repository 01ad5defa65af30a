package race

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	MaxPlayers       = 4
	CountdownSeconds = 3
	IdealWPM         = 60  // baseline typing speed
	TimeFactor       = 1.5 // multiplier for breathing room
)

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseRunning   Phase = "running"
	PhaseFinished  Phase = "finished"
)

// SlotColors is the default avatar color per slot.
var SlotColors = [MaxPlayers]string{"#00eeff", "#ff003c", "#ffe600", "#00ff88"}

var AvatarVariants = []string{"beetle", "sedan", "sports", "truck"}

const DefaultAvatar = "beetle"

type Player struct {
	Slot          int     `json:"slot"`
	Name          string  `json:"name"`
	AvatarVariant string  `json:"avatar_variant"`
	AvatarColor   string  `json:"avatar_color"`
	Progress      float64 `json:"progress"`
	WPM           int     `json:"wpm"`
	Accuracy      int     `json:"accuracy"`
	Finished      bool    `json:"finished"`
	TimedOut      bool    `json:"timed_out"`
	FinishRank    int     `json:"finish_rank"`
}

func NewPlayer(slot int, name, variant, color string) *Player {
	if name == "" {
		name = "Player " + strconv.Itoa(slot+1)
	}
	if variant == "" {
		variant = DefaultAvatar
	}
	if color == "" {
		color = SlotColors[slot]
	}
	return &Player{
		Slot:          slot,
		Name:          name,
		AvatarVariant: variant,
		AvatarColor:   color,
		Accuracy:      100,
	}
}

// ResetRace zeroes every per-race field, keeping identity fields.
func (p *Player) ResetRace() {
	p.Progress = 0
	p.WPM = 0
	p.Accuracy = 100
	p.Finished = false
	p.TimedOut = false
	p.FinishRank = 0
}

// Clone returns a copy safe to hand across goroutine boundaries.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// TimeLimit derives the race duration in seconds from the text length.
func TimeLimit(text string) int {
	words := WordCount(text)
	return int(math.Ceil(float64(words) / IdealWPM * 60 * TimeFactor))
}

type Metrics struct {
	Progress float64
	WPM      int
	Accuracy int
	Complete bool
}

// Measure scores typed input against the race text. Accuracy counts correct
// characters at each position; progress counts only the unbroken correct
// prefix, so a mismatch freezes it until the mismatch itself is fixed.
func Measure(text, typed string, elapsed time.Duration) Metrics {
	target := []rune(text)
	input := []rune(typed)

	correct := 0
	for i := range input {
		if i < len(target) && input[i] == target[i] {
			correct++
		}
	}

	accuracy := 100
	if len(input) > 0 {
		accuracy = int(math.Round(float64(correct) / float64(len(input)) * 100))
	}

	wpm := 0
	if mins := elapsed.Minutes(); mins > 0 {
		wpm = int(math.Floor(float64(correct) / 5 / mins))
	}

	matched := 0
	for i := range target {
		if i < len(input) && input[i] == target[i] {
			matched++
		} else {
			break
		}
	}
	progress := 0.0
	if len(target) > 0 {
		progress = math.Min(100, float64(matched)/float64(len(target))*100)
	}

	return Metrics{
		Progress: progress,
		WPM:      wpm,
		Accuracy: accuracy,
		Complete: typed == text,
	}
}

// Race is the per-race shared session record. TimeLimit is derived once from
// the text and never changes for the race's duration.
type Race struct {
	Text          string
	TimeLimit     int
	Remaining     int
	FinishedCount int
}

func NewRace(text string) *Race {
	limit := TimeLimit(text)
	return &Race{Text: text, TimeLimit: limit, Remaining: limit}
}

// NextRank hands out the next finish rank from the local counter.
func (r *Race) NextRank() int {
	r.FinishedCount++
	return r.FinishedCount
}

// ObserveRank folds a remotely assigned rank into the local counter so later
// local assignments continue past it.
func (r *Race) ObserveRank(rank int) {
	if rank > r.FinishedCount {
		r.FinishedCount = rank
	}
}

// Finish marks a slot finished. Returns false without touching the record if
// the slot is empty or already finished.
func Finish(p *Player, rank, wpm, accuracy int, timedOut bool) bool {
	if p == nil || p.Finished {
		return false
	}
	p.Finished = true
	p.TimedOut = timedOut
	p.FinishRank = rank
	p.WPM = wpm
	if !timedOut {
		p.Accuracy = accuracy
	}
	return true
}

// AllFinished reports whether every occupied slot has finished. A roster with
// no occupied slots never counts as finished.
func AllFinished(players []*Player) bool {
	occupied := 0
	for _, p := range players {
		if p == nil {
			continue
		}
		occupied++
		if !p.Finished {
			return false
		}
	}
	return occupied > 0
}

// Standings returns the finished players ordered by finish rank.
func Standings(players []*Player) []*Player {
	var out []*Player
	for _, p := range players {
		if p != nil && p.Finished {
			out = append(out, p.Clone())
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].FinishRank < out[j-1].FinishRank; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
