package tenant

import "testing"

func mustTenant(name, bearer string, workers ...string) Tenant {
	admitted := make(map[string]struct{}, len(workers))
	for _, w := range workers {
		admitted[w] = struct{}{}
	}
	return Tenant{Name: name, BearerToken: bearer, AllowedClientTokens: admitted}
}

func TestNew_EmptyTenants(t *testing.T) {
	_, err := New(nil, "admin-token")
	if err == nil {
		t.Fatal("expected error for empty tenant list")
	}
}

func TestNew_TokenCollisionWithAdmin(t *testing.T) {
	ts := []Tenant{mustTenant("a", "dup-token")}
	_, err := New(ts, "dup-token")
	if err == nil {
		t.Fatal("expected error when tenant token collides with admin token")
	}
}

func TestNew_TokenCollisionAcrossTenants(t *testing.T) {
	ts := []Tenant{mustTenant("a", "shared"), mustTenant("b", "shared")}
	_, err := New(ts, "admin")
	if err == nil {
		t.Fatal("expected error when two tenants share a bearer token")
	}
}

func TestByToken(t *testing.T) {
	ts := []Tenant{mustTenant("acme", "t-aaa", "w-bbb")}
	reg, err := New(ts, "admin-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := reg.ByToken("t-aaa")
	if got == nil || got.Name != "acme" {
		t.Fatalf("expected to find tenant acme, got %+v", got)
	}

	if reg.ByToken("unknown") != nil {
		t.Fatal("expected nil for unknown token")
	}
}

func TestByHash(t *testing.T) {
	ts := []Tenant{mustTenant("acme", "t-aaa")}
	reg, err := New(ts, "admin-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hash := TokenHash("t-aaa")
	if len(hash) != 16 {
		t.Fatalf("expected 16-char hash, got %q", hash)
	}

	got := reg.ByHash(hash)
	if got == nil || got.Name != "acme" {
		t.Fatalf("expected to find tenant acme by hash, got %+v", got)
	}
}

func TestAdmittingWorker(t *testing.T) {
	ts := []Tenant{
		mustTenant("t1", "tok1", "w1"),
		mustTenant("t2", "tok2", "w1", "w2"),
	}
	reg, err := New(ts, "admin-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	admitting := reg.AdmittingWorker("w1")
	if len(admitting) != 2 {
		t.Fatalf("expected w1 admitted by 2 tenants, got %d", len(admitting))
	}

	admitting = reg.AdmittingWorker("w2")
	if len(admitting) != 1 || admitting[0].Name != "t2" {
		t.Fatalf("expected w2 admitted only by t2, got %+v", admitting)
	}

	if len(reg.AdmittingWorker("unknown")) != 0 {
		t.Fatal("expected no tenants for unknown worker token")
	}
}

func TestTenant_Admits(t *testing.T) {
	tn := mustTenant("acme", "t-aaa", "w-bbb")
	if !tn.Admits("w-bbb") {
		t.Fatal("expected tenant to admit w-bbb")
	}
	if tn.Admits("w-ccc") {
		t.Fatal("expected tenant not to admit w-ccc")
	}
}

func TestList_StableOrder(t *testing.T) {
	ts := []Tenant{mustTenant("a", "tok-a"), mustTenant("b", "tok-b"), mustTenant("c", "tok-c")}
	reg, err := New(ts, "admin-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := reg.List()
	if len(got) != 3 || got[0].Name != "a" || got[1].Name != "b" || got[2].Name != "c" {
		t.Fatalf("expected stable configured order, got %+v", got)
	}
}

func TestWorkerAuthToken(t *testing.T) {
	ts := []Tenant{mustTenant("first", "tok-first"), mustTenant("second", "tok-second")}
	reg, err := New(ts, "admin-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reg.WorkerAuthToken(); got != "tok-first" {
		t.Fatalf("expected first tenant's token, got %q", got)
	}
}
