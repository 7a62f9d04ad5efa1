package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/clients/timer_client"
	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/models"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "focusroom server address")
		roomFlag = flag.String("room", "", "room id")
		userFlag = flag.String("user", "", "participant id")
		start    = flag.Bool("start", false, "start the current session after connecting (admin only)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	roomID, err := uuid.Parse(*roomFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -room")
	}
	userID, err := models.ParseParticipantID(*userFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := timer_client.NewClient(timer_client.Config{
		BaseURL:       *server,
		RoomID:        roomID,
		UserID:        userID,
		FrameInterval: 250 * time.Millisecond,
	})

	client.Reconciler().OnCompleted(func(s models.SessionType) {
		fmt.Printf("\a\n%s session finished\n", s)
	})
	client.OnEvent(func(env events.Envelope) {
		if env.Type == events.EventTypeTimerUpdate {
			return
		}
		fmt.Printf("\n[%s] %s\n", env.Type, string(env.Data))
	})

	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	if *start {
		if err := client.Start(nil, nil); err != nil {
			log.Error().Err(err).Msg("failed to send start")
		}
	}

	err = client.Run(ctx, func(v timer_client.View) {
		state := "paused"
		if v.IsRunning {
			state = "running"
		}
		secs := v.RemainingSeconds
		fmt.Printf("\r%-5s %02d:%02d %-7s", v.SessionType, secs/60, secs%60, state)
	})
	fmt.Println()
	if err != nil {
		log.Fatal().Err(err).Msg("connection lost")
	}
}
