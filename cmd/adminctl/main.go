package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/terminal-bench/energymarket/pkg/adminapi"
	"github.com/terminal-bench/energymarket/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	client := adminapi.NewClient(cfg.AdminBaseURL)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Println("\n===== ADMINISTRATION CLIENT =====")
		fmt.Println("1. List all power plants")
		fmt.Println("2. Average CO2 emissions over a time range")
		fmt.Println("3. Exit")
		fmt.Print("Select an option: ")

		if !scanner.Scan() {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			listPlants(client)
		case "2":
			printAverage(client, scanner)
		case "3":
			return
		default:
			fmt.Println("Unknown option, choose 1, 2 or 3.")
		}
	}
}

func listPlants(client *adminapi.Client) {
	plants, err := client.Plants(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach the administration service: %v\n", err)
		return
	}
	if len(plants) == 0 {
		fmt.Println("No power plants found.")
		return
	}

	fmt.Println("\n===== POWER PLANTS =====")
	for _, p := range plants {
		fmt.Printf("Plant ID: %d, Address: %s, Port: %d, Registration time: %d\n",
			p.PlantID, p.Address, p.Port, p.RegistrationTime)
	}
	fmt.Println("------------------------")
	fmt.Printf("Total plants found: %d\n", len(plants))
}

func printAverage(client *adminapi.Client, scanner *bufio.Scanner) {
	fmt.Print("Enter start timestamp: ")
	t1, ok := readInt64(scanner)
	if !ok {
		return
	}
	fmt.Print("Enter end timestamp: ")
	t2, ok := readInt64(scanner)
	if !ok {
		return
	}

	avg, err := client.AverageCO2(context.Background(), t1, t2)
	fmt.Println("\n===== CO2 EMISSION STATISTICS =====")
	fmt.Printf("Query Period: from %d to %d\n", t1, t2)
	switch {
	case err == nil:
		fmt.Printf("Result: Average CO2 emission level is %.2f\n", avg)
	case errors.Is(err, adminapi.ErrNoData):
		fmt.Println("Result: No CO2 data was found for the specified time period.")
	case errors.Is(err, adminapi.ErrInvalidRange):
		fmt.Println("Info: Invalid request. The start timestamp must not exceed the end timestamp.")
	default:
		fmt.Fprintf(os.Stderr, "Error: cannot reach the administration service: %v\n", err)
	}
}

func readInt64(scanner *bufio.Scanner) (int64, bool) {
	if !scanner.Scan() {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
	if err != nil {
		fmt.Println("Info: Timestamps must be valid whole numbers.")
		return 0, false
	}
	return v, true
}
