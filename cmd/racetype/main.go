// Command racetype is a minimal terminal front end for the session core: it
// hosts or joins a room, renders session events as text, and feeds typed
// input into the race.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jdowell/racetype/internal/config"
	"github.com/jdowell/racetype/internal/prefs"
	"github.com/jdowell/racetype/internal/race"
	"github.com/jdowell/racetype/internal/session"
	"github.com/jdowell/racetype/internal/transport"
	"github.com/jdowell/racetype/internal/transport/wsrelay"
)

func main() {
	var (
		host       = flag.Bool("host", false, "host a new room")
		join       = flag.String("join", "", "join a room by code")
		name       = flag.String("name", "", "display name")
		avatar     = flag.String("car", "", "avatar variant (beetle, sedan, sports, truck)")
		color      = flag.String("color", "", "avatar color, hex")
		configPath = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	if *host == (*join != "") {
		fmt.Fprintln(os.Stderr, "usage: racetype -host | -join CODE")
		os.Exit(2)
	}

	_ = godotenv.Load()
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	profile := store.Load()
	if *name != "" {
		profile.Name = *name
	}
	if *avatar != "" {
		profile.AvatarVariant = *avatar
	}
	if *color != "" {
		profile.AvatarColor = *color
	}
	if err := store.Save(profile); err != nil {
		log.Warn("could not save profile", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := session.Options{
		Network:         wsrelay.New(cfg.RelayURL, log),
		TransportConfig: transport.Config{ICEServers: cfg.ICEServers},
		Log:             log,
		JoinTimeout:     cfg.JoinTimeout,
		Name:            profile.Name,
		AvatarVariant:   profile.AvatarVariant,
		AvatarColor:     profile.AvatarColor,
	}

	var sess *session.Session
	if *host {
		sess, err = session.Host(ctx, opts)
	} else {
		sess, err = session.Join(ctx, opts, *join)
	}
	if err != nil {
		fatal(err)
	}
	defer sess.Leave()

	fmt.Printf("room %s (%s)\n", sess.RoomCode(), sess.Role())
	if sess.Role() == session.RoleHost {
		fmt.Println("share the code; type /start when everyone is in")
	}

	go readInput(sess)

	for ev := range sess.Events() {
		render(ev)
	}
}

// readInput feeds stdin into the session. Lines starting with / are commands;
// anything else is appended to the typed race text.
func readInput(sess *session.Session) {
	var typed strings.Builder
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "/start":
			sess.StartRace()
		case line == "/again":
			typed.Reset()
			sess.PlayAgain()
		case line == "/quit":
			sess.Leave()
			return
		default:
			if typed.Len() > 0 {
				typed.WriteString(" ")
			}
			typed.WriteString(line)
			sess.UpdateTyping(typed.String())
		}
	}
}

func render(ev session.Event) {
	switch e := ev.(type) {
	case session.RosterChanged:
		fmt.Println("players:")
		for i, p := range e.Players {
			if p == nil {
				fmt.Printf("  slot %d: open\n", i)
				continue
			}
			tag := ""
			if p.Slot == 0 {
				tag = " (host)"
			}
			fmt.Printf("  slot %d: %s%s [%s %s]\n", i, p.Name, tag, p.AvatarVariant, p.AvatarColor)
		}
	case session.PhaseChanged:
		switch e.Phase {
		case race.PhaseCountdown:
			fmt.Printf("race starting, %ds to type %d words:\n%s\n", e.TimeLimit, race.WordCount(e.Text), e.Text)
		case race.PhaseRunning:
			fmt.Println("GO!")
		case race.PhaseFinished:
			fmt.Println("race over")
		}
	case session.CountdownTick:
		if e.Remaining > 0 {
			fmt.Printf("%d...\n", e.Remaining)
		}
	case session.TimerTick:
		if e.Remaining <= 10 && e.Remaining > 0 {
			fmt.Printf("%ds left\n", e.Remaining)
		}
	case session.TrackChanged:
		for _, p := range e.Players {
			if p == nil {
				continue
			}
			status := fmt.Sprintf("%3.0f%% %3d wpm", p.Progress, p.WPM)
			if p.Finished {
				if p.TimedOut {
					status = "TIME"
				} else {
					status = fmt.Sprintf("#%d %d wpm", p.FinishRank, p.WPM)
				}
			}
			fmt.Printf("  %-16s %s\n", p.Name, status)
		}
	case session.RaceResult:
		fmt.Println("results:")
		for _, p := range e.Standings {
			status := fmt.Sprintf("%d wpm, %d%% accuracy", p.WPM, p.Accuracy)
			if p.TimedOut {
				status += " (timed out)"
			}
			fmt.Printf("  #%d %s: %s\n", p.FinishRank, p.Name, status)
		}
	case session.Errored:
		fmt.Fprintln(os.Stderr, "error:", e.Err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "racetype:", err)
	os.Exit(1)
}
