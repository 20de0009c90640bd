package config

import "testing"

func TestRWMutexManager_GetReturnsIndependentClone(t *testing.T) {
	cfg := &Config{General: General{Environment: "dev"}, Tenants: map[string]Tenant{
		"acme": {OwnCompany: "acme", Platforms: []string{"portal-a"}},
	}}
	mgr := NewManager(cfg)

	snapshot := mgr.Get()
	snapshot.Tenants["acme"] = Tenant{OwnCompany: "mutated"}

	again := mgr.Get()
	if again.Tenants["acme"].OwnCompany != "acme" {
		t.Fatalf("expected manager's internal state untouched by caller mutation, got %q", again.Tenants["acme"].OwnCompany)
	}
}

func TestRWMutexManager_SetReplacesConfig(t *testing.T) {
	mgr := NewManager(&Config{General: General{Environment: "dev"}})
	mgr.Set(&Config{General: General{Environment: "prod"}})

	if mgr.Get().General.Environment != "prod" {
		t.Fatal("expected Set to replace the live config")
	}
}

func TestRWMutexManager_ReloadRejectsEmptyPath(t *testing.T) {
	mgr := NewManager(&Config{})
	if err := mgr.Reload(""); err == nil {
		t.Fatal("expected error for empty reload path")
	}
}
