package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"voltedge/internal/model"
)

// WriteSnapshotCSV writes one row per tick snapshot. This is the primary
// artifact for "what happened" in a step-mode run.
func WriteSnapshotCSV(path string, snapshots []model.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{
		"simulation_id",
		"tick_number",
		"timestamp",
		"total_generation_mw",
		"total_consumption_mw",
		"grid_frequency_hz",
		"grid_voltage_kv",
		"efficiency_percentage",
		"fault_count",
		"active_failures",
		"total_losses_mw",
		"total_co2_tonnes",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range snapshots {
		failures := ""
		for i, ref := range s.ActiveFailureIDs {
			if i > 0 {
				failures += ";"
			}
			failures += fmt.Sprintf("%s:%d", ref.Class, ref.ID)
		}
		row := []string{
			strconv.FormatUint(s.SimulationID, 10),
			strconv.FormatUint(s.TickNumber, 10),
			fmtTime(s.Timestamp),
			fmtFloat(s.TotalGenerationMW),
			fmtFloat(s.TotalConsumptionMW),
			fmtFloat(s.GridFrequencyHz),
			fmtFloat(s.GridVoltageKV),
			fmtFloat(s.EfficiencyPercentage),
			strconv.Itoa(s.FaultCount),
			failures,
			fmtFloat(s.TotalLossesMW),
			fmtFloat(s.TotalCO2Tonnes),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
