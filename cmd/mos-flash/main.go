package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/agon-tools/mos-flash/internal/bridge"
	"github.com/agon-tools/mos-flash/internal/checksum"
	"github.com/agon-tools/mos-flash/internal/detect"
	"github.com/agon-tools/mos-flash/internal/ez80"
	"github.com/agon-tools/mos-flash/internal/flash"
	"github.com/agon-tools/mos-flash/internal/image"
	"github.com/agon-tools/mos-flash/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	portFlag     string
	baudFlag     int
	clockFlag    int
	attemptsFlag int
	yesFlag      bool
	dryRunFlag   bool
)

// Exit statuses kept compatible with the MOS command conventions.
const (
	exitFailure      = 1
	exitFileNotFound = 4
	exitInvalidImage = 19
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mos-flash",
		Short: "Reflash the MOS firmware on Agon Light (eZ80F92) machines",
		Long: `mos-flash reprograms the eZ80's 128KB internal flash with a new MOS
firmware image, replacing the resident MOS that is itself being
overwritten. The target is driven over a serial debug bridge stub.

Once erasing starts there is no way back: the old firmware is gone and
only a verified new image makes the machine bootable again. The image is
validated and checksummed, and you are asked to confirm, before any
flash is touched.`,
	}

	flashCmd := &cobra.Command{
		Use:   "flash <MOS.bin>",
		Short: "Program a MOS image into flash",
		Long: `Erase the full flash region, program the image page by page and verify
the result by CRC-32. On a checksum mismatch the whole cycle is retried,
up to three times by default.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	flashCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	flashCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")
	flashCmd.Flags().IntVar(&clockFlag, "clock", flash.DefaultClockHz, "Flash controller clock in Hz (sets erase timing)")
	flashCmd.Flags().IntVar(&attemptsFlag, "attempts", 3, "Full erase/program/verify cycles before giving up")
	flashCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	flashCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Program an in-memory flash model instead of hardware")

	verifyCmd := &cobra.Command{
		Use:   "verify <MOS.bin>",
		Short: "Compare flash contents against an image without programming",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}
	verifyCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Serial port (auto-detect if not specified)")
	verifyCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")

	checksumCmd := &cobra.Command{
		Use:   "checksum <file>",
		Short: "Print the CRC-32 of a file",
		Args:  cobra.ExactArgs(1),
		RunE:  runChecksum,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mos-flash %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List serial ports and probe them for a bridge stub",
		RunE:  runList,
	}
	listCmd.Flags().IntVarP(&baudFlag, "baud", "b", serial.DefaultBaudRate, "Baud rate")

	rootCmd.AddCommand(flashCmd, verifyCmd, checksumCmd, versionCmd, listCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps failures to the MOS-style exit statuses.
func exitCode(err error) int {
	var sigErr *image.SignatureError
	var sizeErr *image.SizeError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return exitFileNotFound
	case errors.As(err, &sigErr), errors.As(err, &sizeErr):
		return exitInvalidImage
	default:
		return exitFailure
	}
}

// loadImage reads and validates a firmware image file.
func loadImage(path string) (*image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening firmware image: %w", err)
	}
	defer f.Close()

	img, err := image.Load(f, flash.AgonEZ80.Capacity())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := img.Validate(flash.AgonEZ80.Capacity()); err != nil {
		return nil, err
	}
	return img, nil
}

// openDevice connects to the bridge stub and returns an eZ80 flash
// controller on it. The caller closes the returned port.
func openDevice() (*ez80.Controller, *bridge.Client, *serial.Port, error) {
	portName := portFlag
	if portName == "" {
		fmt.Println("Detecting device...")
		result, err := detect.DetectDevice(baudFlag)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("device detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found bridge stub on %s\n", result.Port)
	} else if _, err := detect.DetectOnPort(portName, baudFlag); err != nil {
		return nil, nil, nil, fmt.Errorf("no bridge stub on %s: %w", portName, err)
	}

	port, err := serial.Open(portName, baudFlag)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open port: %w", err)
	}

	client := bridge.New(port)
	if err := client.Sync(); err != nil {
		port.Close()
		return nil, nil, nil, err
	}

	fmt.Printf("Port: %s @ %d baud\n", port.PortName(), port.BaudRate())
	return ez80.NewController(client), client, port, nil
}

func runFlash(cmd *cobra.Command, args []string) error {
	img, err := loadImage(args[0])
	if err != nil {
		return err
	}

	crc := checksum.Sum(img.Data)
	fmt.Printf("Firmware: %s (%d bytes)\n", args[0], img.Size())
	fmt.Printf("MOS CRC 0x%08X\n\n", crc)

	// The one cancellation point. Past this, interrupts go off and the
	// resident firmware is destroyed.
	if !yesFlag && !confirm("Flash firmware (y/n)? ") {
		fmt.Println("User abort")
		return nil
	}

	var dev flash.Device
	var client *bridge.Client
	if dryRunFlag {
		fmt.Println("Dry run: programming an in-memory flash model")
		dev = flash.NewMemDevice(flash.AgonEZ80)
	} else {
		controller, c, port, err := openDevice()
		if err != nil {
			return err
		}
		defer port.Close()
		dev = controller
		client = c
	}

	pages, _ := flash.PagePlan(img.Size(), flash.AgonEZ80.PageSize)
	bar := progressbar.NewOptions(pages,
		progressbar.OptionSetDescription("Writing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	prog := flash.New(dev, flash.AgonEZ80,
		flash.WithMaxAttempts(attemptsFlag),
		flash.WithClock(clockFlag),
		flash.WithProgress(func(p flash.Progress) {
			switch p.Phase {
			case flash.PhaseErasing:
				fmt.Println("Erasing flash...")
			case flash.PhaseProgramming:
				bar.Set(p.Page)
			case flash.PhaseVerifying:
				bar.Clear()
				fmt.Println("Checking CRC...")
			case flash.PhaseRetrying:
				fmt.Printf("Retry attempt #%d\n", p.Attempt-1)
			}
		}),
	)

	fmt.Println("\nProgramming MOS firmware to eZ80 flash...")
	res, err := prog.Program(img)
	bar.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("OK (verified CRC 0x%08X, %d attempt(s))\n\n", res.CRC, res.Attempts)

	if client != nil {
		fmt.Println("Resetting target...")
		if err := client.Reset(); err != nil {
			fmt.Printf("Warning: reset failed: %v\n", err)
		}
	}

	fmt.Println("Done! The previous MOS is gone; the system boots the new firmware.")
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	img, err := loadImage(args[0])
	if err != nil {
		return err
	}
	want := checksum.Sum(img.Data)

	controller, _, port, err := openDevice()
	if err != nil {
		return err
	}
	defer port.Close()

	prog := flash.New(controller, flash.AgonEZ80)
	got, err := prog.ReadbackCRC(img.Size())
	if err != nil {
		return err
	}

	if got != want {
		return fmt.Errorf("flash CRC 0x%08X does not match image CRC 0x%08X", got, want)
	}
	fmt.Printf("OK: flash matches %s (CRC 0x%08X)\n", args[0], want)
	return nil
}

func runChecksum(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	fmt.Printf("CRC-32: 0x%08X (%d bytes)\n", checksum.Sum(data), len(data))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	devices, err := detect.ListDevices(baudFlag)
	if err != nil {
		return err
	}
	stubs := make(map[string]bool, len(devices))
	for _, d := range devices {
		stubs[d.Port] = true
	}

	fmt.Println("Available serial ports:")
	for _, p := range ports {
		if stubs[p] {
			fmt.Printf("  %s (bridge stub responding)\n", p)
		} else {
			fmt.Printf("  %s\n", p)
		}
	}

	return nil
}

// confirm prompts on stdout and reads a y/n answer from stdin.
func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(prompt)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
	}
}
