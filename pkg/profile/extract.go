package profile

import (
	"strconv"
	"time"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/core"
)

// Artifact keys read by the extractor.
const (
	KeyInfo         = "info"
	KeyBackupInfo   = "backup_info"
	KeyApplications = "applications"
	KeyNetUsage     = "netusage"
	KeyDataUsage    = "datausage"
	KeyFilesystem   = "filesystem"
	KeyTCC          = "tcc"
	KeyLocation     = "locationd_clients"
	KeyWebKit       = "webkit_resource_load_statistics"
)

// Property names that other packages read back.
const (
	PropTargetPath   = "Scan Target Path"
	PropMVTVersion   = "MVT Version"
	PropAnalysisDate = "Analysis Date"
	PropIOCFiles     = "IOC Files Used"
	PropGenerated    = "Report Generated"
	PropDeviceType   = "Device Type"
	PropDataSources  = "Total Data Sources"
)

// backupFields are copied from backup_info in this order.
var backupFields = []string{
	"Device Name",
	"Product Name",
	"Product Type",
	"Product Version",
	"Build Version",
	"Serial Number",
	"Phone Number",
	"IMEI",
	"MEID",
	"ICCID",
	"Last Backup Date",
	"Target Identifier",
}

// countFields are simple list lengths.
var countFields = []struct {
	key  string
	name string
}{
	{KeyFilesystem, "Filesystem Entries"},
	{KeyTCC, "Privacy Permissions"},
	{KeyLocation, "Location Clients"},
	{KeyWebKit, "Browser Tracking Domains"},
}

// Params carries the caller-supplied inputs of Extract.
type Params struct {
	DeviceType string
	Now        time.Time
	Logger     core.Logger
}

// scanInfo is the optional-field view of the info artifact.
type scanInfo struct {
	TargetPath string
	MVTVersion string
	Date       string
	IOCFiles   int
	Hashes     int
}

func newScanInfo(r artifact.Record) scanInfo {
	iocs, _ := r.Len("ioc_files")
	hashes, _ := r.Len("hashes")
	return scanInfo{
		TargetPath: r.StringOr("target_path", Unknown),
		MVTVersion: r.StringOr("mvt_version", Unknown),
		Date:       r.StringOr("date", Unknown),
		IOCFiles:   iocs,
		Hashes:     hashes,
	}
}

// Extract builds the device profile from set. Sources are read in a fixed
// order and a malformed source is skipped without affecting the others.
func Extract(set *artifact.Set, p Params) *Profile {
	log := core.OrNop(p.Logger)
	prof := New()

	if info, err := set.Record(KeyInfo); err != nil {
		log.Warn("Device profile: %v", err)
	} else if info != nil {
		si := newScanInfo(info)
		prof.Add(PropTargetPath, si.TargetPath)
		prof.Add(PropMVTVersion, si.MVTVersion)
		prof.Add(PropAnalysisDate, si.Date)
		prof.Add(PropIOCFiles, strconv.Itoa(si.IOCFiles))
		prof.Add("Hash Files Used", strconv.Itoa(si.Hashes))
	}

	if backup, err := set.Record(KeyBackupInfo); err != nil {
		log.Warn("Device profile: %v", err)
	} else if backup != nil {
		for _, field := range backupFields {
			prof.Add(field, backup.StringOr(field, Unknown))
		}
		if apps, ok := backup.List("Installed Applications"); ok {
			prof.Add("Total Apps (Backup)", strconv.Itoa(len(apps)))
		}
	}

	if apps, err := set.Records(KeyApplications); err != nil {
		log.Warn("Device profile: %v", err)
	} else if apps != nil {
		sideloaded := 0
		for _, app := range apps {
			if app.Truthy("sideLoadedDeviceBasedVPP") {
				sideloaded++
			}
		}
		prof.Add("Total Apps (Detailed)", strconv.Itoa(len(apps)))
		prof.Add("App Store Apps", strconv.Itoa(len(apps)-sideloaded))
		prof.Add("Sideloaded Apps", strconv.Itoa(sideloaded))
	}

	if key, ok := NetworkKey(set); ok {
		if procs, err := set.Records(key); err != nil {
			log.Warn("Device profile: %v", err)
		} else {
			var sent float64
			for _, proc := range procs {
				sent += artifact.Sum(proc["wifi_out"], proc["wwan_out"])
			}
			prof.Add("Network Processes", strconv.Itoa(len(procs)))
			prof.Add("Total Data Sent (bytes)", FormatCount(sent))
		}
	}

	for _, cf := range countFields {
		if n, ok := set.Count(cf.key); ok {
			prof.Add(cf.name, strconv.Itoa(n))
		}
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	deviceType := p.DeviceType
	if deviceType == "" {
		deviceType = Unknown
	}
	prof.Add(PropGenerated, formatGenerated(now))
	prof.Add(PropDeviceType, deviceType)
	prof.Add(PropDataSources, strconv.Itoa(set.Len()))

	for _, c := range prof.Conflicts() {
		log.Debug("Device profile: kept %s=%q, ignored %q", c.Name, c.Kept, c.Rejected)
	}
	return prof
}

// NetworkKey picks the network usage artifact: netusage when present and
// non-empty, else datausage.
func NetworkKey(set *artifact.Set) (string, bool) {
	if key, ok := set.FirstNonEmpty(KeyNetUsage, KeyDataUsage); ok {
		return key, true
	}
	for _, k := range []string{KeyNetUsage, KeyDataUsage} {
		if v, ok := set.Get(k); ok && v != nil {
			if _, isList := v.([]any); !isList {
				return k, true
			}
		}
	}
	return "", false
}
