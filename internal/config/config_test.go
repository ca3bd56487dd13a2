package config

import "testing"

func validConfig() *Config {
	return &Config{
		Port:                    7070,
		AppLogLevel:             5,
		ConsoleLogLevel:         5,
		LogFormat:               "json",
		RotationIntervalSeconds: 3600,
		RetainedJournals:        6,
		WorkerCount:             6,
		MaxConnections:          100,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v; want nil", err)
	}
}

func TestValidateRejectsRotationIntervalOutOfRange(t *testing.T) {
	c := validConfig()
	c.RotationIntervalSeconds = 10
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() = nil; want error for interval below 60")
	}

	c = validConfig()
	c.RotationIntervalSeconds = 100000
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() = nil; want error for interval above 86400")
	}
}

func TestValidateRejectsKeepOutOfRange(t *testing.T) {
	c := validConfig()
	c.RetainedJournals = 365
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() = nil; want error for keep above 364")
	}

	c = validConfig()
	c.RetainedJournals = -1
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() = nil; want error for negative keep")
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	c := validConfig()
	c.LogFormat = "xml"
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() = nil; want error for unsupported log format")
	}
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	c := validConfig()
	c.WorkerCount = 0
	if err := c.Validate(); err == nil {
		t.Fatal("Validate() = nil; want error for zero workers")
	}
}
