package digest

// Config tunes scheduled digest generation.
type Config struct {
	// ScheduleEnabled generates the daily digest on a schedule in the
	// server process.
	ScheduleEnabled bool `env:"DIGEST_SCHEDULE_ENABLED,default=false"`
	// ScheduleHourUTC is the UTC hour of day at which the scheduled daily
	// digest is generated.
	ScheduleHourUTC int `env:"DIGEST_SCHEDULE_HOUR_UTC,default=22" validate:"min=0,max=23"`
}
