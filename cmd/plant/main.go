package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/terminal-bench/energymarket/internal/plant"
	"github.com/terminal-bench/energymarket/pkg/adminapi"
	"github.com/terminal-bench/energymarket/pkg/config"
	"github.com/terminal-bench/energymarket/pkg/logging"
	"github.com/terminal-bench/energymarket/shared/model"
)

func main() {
	log := logging.New("plant")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("===== Power Plant Configuration =====")

	var p *plant.Plant
	var plantID int
	for {
		plantID = promptInt(scanner, "Enter Plant ID: ", cfg.PlantID)
		port := promptInt(scanner, "Enter Port: ", cfg.PlantPort)

		self, err := model.NewPlantInfo(plantID, "localhost", port, time.Now().UnixMilli())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v. Please try again.\n", err)
			cfg.PlantID, cfg.PlantPort = 0, 0
			continue
		}

		p = plant.New(cfg, self, log)
		err = p.Start(context.Background())
		if err == nil {
			fmt.Printf("PowerPlant %d started successfully\n", plantID)
			fmt.Printf("Connected to admin server at: %s\n", cfg.AdminBaseURL)
			break
		}

		p.Stop()
		switch {
		case errors.Is(err, adminapi.ErrRegistrationConflict):
			fmt.Fprintln(os.Stderr, "\n--- REGISTRATION FAILED ---")
			fmt.Fprintf(os.Stderr, "REASON: %v\n", err)
			fmt.Fprintln(os.Stderr, "Please choose a different Plant ID.")
			cfg.PlantID = 0
		case errors.Is(err, plant.ErrPortInUse):
			fmt.Fprintln(os.Stderr, "\n--- STARTUP FAILED ---")
			fmt.Fprintf(os.Stderr, "REASON: %v\n", err)
			fmt.Fprintln(os.Stderr, "Choose a different Port.")
			cfg.PlantPort = 0
		default:
			log.Error().Err(err).Int("plant_id", plantID).Msg("fatal startup error")
			os.Exit(1)
		}
	}

	fmt.Println("PowerPlant is running.")
	fmt.Println("Enter 'exit' to shut down the PowerPlant:")
	for scanner.Scan() {
		command := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if command == "exit" {
			break
		}
		if command != "" {
			fmt.Println("Unknown command. Enter 'exit' to shut down.")
		}
	}

	fmt.Printf("Shutting down PowerPlant %d...\n", plantID)
	p.Stop()
	fmt.Printf("PowerPlant %d shut down successfully.\n", plantID)
}

// promptInt asks until the operator types a valid integer. A positive
// preset from configuration is used without prompting once.
func promptInt(scanner *bufio.Scanner, prompt string, preset int) int {
	if preset > 0 {
		fmt.Printf("%s%d (from config)\n", prompt, preset)
		return preset
	}
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			os.Exit(1)
		}
		v, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: value must be a valid integer. Please try again.")
			continue
		}
		return v
	}
}
