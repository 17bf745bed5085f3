package vanc

// Identifier is a parity-stripped DID/SDID pair.
type Identifier struct {
	DID, SDID uint8
}

// Well-known packet types.
var (
	IDPayloadIdentifier = Identifier{0x41, 0x01}
	IDAFD               = Identifier{0x41, 0x05}
	IDSCTE104           = Identifier{0x41, 0x07}
	IDTimecode          = Identifier{0x60, 0x60}
	IDCEA708            = Identifier{0x61, 0x01}
	IDCEA608            = Identifier{0x61, 0x02}
)

// registry holds the DID/SDID assignments registered with SMPTE.
// https://smpte-ra.org/smpte-ancillary-data-smpte-st-291
var registry = map[Identifier]string{
	IDPayloadIdentifier: "Payload Identification (SMPTE ST 352)",
	IDAFD:               "AFD and Bar Data (SMPTE ST 2016-3)",
	{0x41, 0x06}:        "Pan-Scan Information (SMPTE ST 2016-4)",
	IDSCTE104:           "ANSI/SCTE 104 messages",
	{0x41, 0x08}:        "DVB/SCTE VBI data",
	{0x43, 0x01}:        "Inter-station Control Data (ITU-R BT.1685)",
	{0x43, 0x02}:        "OP-47 SDP",
	{0x43, 0x03}:        "OP-47 Multi-packet",
	{0x45, 0x01}:        "Audio Metadata (SMPTE ST 2020), channels 1/2",
	{0x45, 0x02}:        "Audio Metadata (SMPTE ST 2020), channels 3/4",
	{0x50, 0x01}:        "WSS Data (RDD 8)",
	{0x51, 0x01}:        "Film Transfer and Video Production Information (RP 215)",
	IDTimecode:          "Ancillary Time Code (SMPTE ST 12-2)",
	IDCEA708:            "EIA 708B Data mapping into VANC space",
	IDCEA608:            "EIA 608 Data mapping into VANC space",
	{0x62, 0x01}:        "Program Description (DTV)",
	{0x62, 0x02}:        "Data Broadcast (DTV)",
	{0x62, 0x03}:        "VBI Data",
	{0x64, 0x64}:        "Time Code (LTC)",
	{0x64, 0x7F}:        "Time Code (VITC)",
}

// Lookup returns the registered name of a DID/SDID pair, or "" if unknown.
func Lookup(did, sdid uint8) string {
	return registry[Identifier{did, sdid}]
}
