package regs

// Band is the hardware band index written into the band sub-field of
// VfoVm. Even values are gaps below an amateur band, odd values are the
// amateur bands themselves, 22 is everything above 6 m.
type Band uint8

type bandEdge struct {
	below uint32 // freq < below selects the gap band
	upTo  uint32 // freq <= upTo selects the amateur band
}

// Lower bound exclusive, upper bound inclusive.
var bandEdges = []bandEdge{
	{1_800_000, 2_000_000},
	{3_500_000, 4_000_000},
	{5_330_500, 5_405_000},
	{7_000_000, 7_300_000},
	{10_100_000, 10_150_000},
	{14_000_000, 14_350_000},
	{18_068_000, 18_168_000},
	{21_000_000, 21_450_000},
	{24_890_000, 24_990_000},
	{28_000_000, 29_700_000},
	{50_000_000, 54_000_000},
}

// BandAbove is the band returned above the last amateur band.
const BandAbove Band = 22

// BandIndex maps a frequency in Hz to its band index.
func BandIndex(freq uint32) Band {
	for i, e := range bandEdges {
		if freq < e.below {
			return Band(i * 2)
		}
		if freq <= e.upTo {
			return Band(i*2 + 1)
		}
	}
	return BandAbove
}

var bandNames = []string{
	"<160m", "160m", "<80m", "80m", "<60m", "60m", "<40m", "40m",
	"<30m", "30m", "<20m", "20m", "<17m", "17m", "<15m", "15m",
	"<12m", "12m", "<10m", "10m", "<6m", "6m", ">6m",
}

func (b Band) String() string {
	if int(b) < len(bandNames) {
		return bandNames[b]
	}
	return "?"
}

// Ham reports whether the band is an amateur allocation.
func (b Band) Ham() bool {
	return b%2 == 1 && b < BandAbove
}
