package homebase

// catalog is the fixed set of keys subscribed to (and touched) on every
// (re)connect, per spec.md §6.
var catalog = []string{
	"system/hostname", "system/hostaddr", "system/os",

	"ess/subject", "ess/project", "ess/system", "ess/protocol", "ess/variant",
	"ess/systems", "ess/protocols", "ess/variants", "ess/state", "ess/status",
	"ess/running", "ess/remote", "ess/name", "ess/ipaddr", "ess/rmt_host",
	"ess/rmt_connected",

	"ess/obs_active", "ess/in_obs", "ess/obs_id", "ess/obs_total", "ess/obs_count",

	"ess/data_dir", "ess/datafile", "ess/lastfile", "ess/system_path", "ess/executable",

	"ess/git/status", "ess/git/branches", "ess/git/branch", "ess/git/tag",

	"ess/loading_start_time", "ess/loading_progress", "ess/loading_operation_id",

	"ess/variant_info", "ess/param_settings", "ess/params",

	"ess/time", "ess/block_id", "ess/warningInfo",

	"@keys",
}
