package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mscrnt/drivecheck/pkg/attrdb"
	"github.com/mscrnt/drivecheck/pkg/device"
	"github.com/mscrnt/drivecheck/pkg/nvme"
	"github.com/mscrnt/drivecheck/pkg/structure"
)

func listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List storage devices",
		Long: `Enumerate whole disks and show their identity and temperature.

Examples:
  drivecheck list
  drivecheck list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := device.List()
			if err != nil {
				return err
			}

			infos := make([]device.Info, 0, len(paths))
			errs := make(map[string]error)
			for _, path := range paths {
				info, err := device.Inspect(path)
				if err != nil {
					logger.WithError(err).WithField("device", path).Debug("inspect failed")
					errs[path] = describeError(path, err)
					info = device.Info{Path: path}
				}
				infos = append(infos, info)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "No devices found")
				return nil
			}
			fmt.Fprintln(out, deviceTable(infos, errs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func deviceTable(infos []device.Info, errs map[string]error) string {
	t := newTable("Path", "Variant", "Model", "Serial", "Firmware", "Temperature")
	for _, info := range infos {
		if err, ok := errs[info.Path]; ok {
			t.Row(info.Path, "", critStyle.Render(err.Error()), "", "", "")
			continue
		}
		temp := "-"
		if info.Temperature != nil {
			temp = fmt.Sprintf("%d°C", *info.Temperature)
		}
		t.Row(info.Path, info.Variant, info.Model, info.Serial, info.Firmware, temp)
	}
	return t.String()
}

func detailsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "details PATH",
		Short: "Show identity and SMART attributes of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			names, err := attributeNames()
			if err != nil {
				return err
			}

			d, err := device.Open(path)
			if err != nil {
				return describeError(path, err)
			}
			defer d.Close()

			info, err := d.Info()
			if err != nil {
				return describeError(path, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, infoTable(info, d.Capabilities()))

			table, err := d.SmartTable()
			if errors.Is(err, device.ErrUnsupportedOperation) {
				fmt.Fprintln(out, dimStyle.Render("SMART: not supported by this device"))
				return nil
			}
			if err != nil {
				return describeError(path, err)
			}

			fmt.Fprintln(out, headerStyle.Render("SMART Attributes"))
			fmt.Fprintln(out, smartTable(table, names))
			return nil
		},
	}
}

func infoTable(info device.Info, caps []device.Operation) string {
	temp := "not reported"
	if info.Temperature != nil {
		temp = fmt.Sprintf("%d°C", *info.Temperature)
	}
	ops := make([]string, len(caps))
	for i, op := range caps {
		ops[i] = string(op)
	}

	t := newTable("Key", "Value")
	t.Row("Path", info.Path)
	t.Row("Interface", info.Variant)
	t.Row("Model Number", info.Model)
	t.Row("Serial Number", info.Serial)
	t.Row("Firmware", info.Firmware)
	t.Row("Temperature", temp)
	t.Row("Commands", strings.Join(ops, ", "))
	return t.String()
}

// smartTable renders either the ATA attribute table or the NVMe health log.
func smartTable(table *device.Table, names *attrdb.DB) string {
	if table.ATA != nil {
		t := newTable("ID", "Name", "Current", "Worst", "Threshold", "Raw", "Unit")
		for _, a := range table.ATA.Entries() {
			attr := names.Lookup(a.ID)
			row := []string{
				strconv.Itoa(int(a.ID)),
				attr.Name,
				strconv.Itoa(int(a.Current)),
				strconv.Itoa(int(a.Worst)),
				strconv.Itoa(int(a.Threshold)),
				humanize.Comma(int64(a.RawValue())),
				attr.Unit,
			}
			if a.Failing() {
				for i := range row {
					row[i] = critStyle.Render(row[i])
				}
			}
			t.Row(row...)
		}
		return t.String()
	}

	t := newTable("Name", "Value", "Unit")
	for _, e := range table.NVMe {
		t.Row(e.Name, healthValue(e), e.Unit)
	}
	return t.String()
}

func healthValue(e nvme.HealthEntry) string {
	switch e.Name {
	case "critical_warning":
		v := uint8(e.Value.Uint64())
		if v == 0 {
			return okStyle.Render("none")
		}
		return critStyle.Render(fmt.Sprintf("%#02x (%s)", v, strings.Join(nvme.WarningNames(v), ", ")))
	case "data_units_read", "data_units_written":
		return fmt.Sprintf("%s (%s)", humanize.BigComma(e.Value.Big()), humanize.BigBytes(nvme.DataUnitBytes(e.Value)))
	}
	return humanize.BigComma(e.Value.Big())
}

func debugCmd() *cobra.Command {
	var display string

	cmd := &cobra.Command{
		Use:   "debug PATH COMMAND",
		Short: "Send one raw command and print the decoded response",
		Long: `Send a raw command to a device and print the response structure.

Commands: inquiry, identify, smart, thresholds. NVMe devices answer identify
and smart only.

Display modes:
  pretty     field table with bit offsets
  raw        response bytes on stdout
  bytearray  Go byte slice literal

Examples:
  drivecheck debug /dev/sda identify
  drivecheck debug /dev/nvme0n1 smart --display raw > smart.bin`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"inquiry", "identify", "smart", "thresholds"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			op, err := device.ParseOperation(args[1])
			if err != nil {
				return err
			}
			mode, err := parseDisplay(display)
			if err != nil {
				return err
			}

			d, err := device.Open(path)
			if err != nil {
				return describeError(path, err)
			}
			defer d.Close()

			decoded, err := d.Command(op)
			if err != nil {
				return describeError(path, err)
			}
			return printDecoded(cmd.OutOrStdout(), decoded, mode)
		},
	}

	cmd.Flags().StringVar(&display, "display", string(DisplayPretty), "Output format: pretty, raw or bytearray")
	return cmd
}

func printDecoded(w io.Writer, d *structure.Decoded, mode Display) error {
	if err := writeStructure(w, d, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", d.Description().Name(), err)
	}
	return nil
}
