package service

// Redis runs inside the container on its canonical port; tenants reach it
// through the published host port.
const redisPort = 6379

// redisCLI builds a redis-cli invocation authenticated with the admin
// secret, suitable for ContainerRuntime.ExecContainer.
func redisCLI(adminSecret string, args ...string) []string {
	cmd := []string{"redis-cli", "-a", adminSecret, "--no-auth-warning"}
	return append(cmd, args...)
}

// serverCommand is the redis-server startup command for a new instance.
// Persistence is disabled on purpose: instances are ephemeral and data
// loss on teardown is expected.
func serverCommand(adminSecret string) []string {
	return []string{
		"redis-server",
		"--requirepass", adminSecret,
		"--maxmemory", "14mb",
		"--maxmemory-policy", "allkeys-lru",
		"--save", "",
		"--appendonly", "no",
	}
}

// aclSetupCommand installs the restricted tenant user: full keyspace and
// data commands, with the admin, dangerous and scripting command classes
// denied so the tenant cannot reconfigure the server or widen its own
// privileges. FLUSHALL/FLUSHDB/PING are re-allowed individually.
func aclSetupCommand(adminSecret, username, secret string) []string {
	return redisCLI(adminSecret,
		"ACL", "SETUSER", username,
		"on",
		">"+secret,
		"~*",
		"+@all",
		"-@admin",
		"-@dangerous",
		"-@scripting",
		"+flushall",
		"+flushdb",
		"+ping",
	)
}

// InfoMemoryCommand is the diagnostic command whose output feeds the
// usage accountant.
func InfoMemoryCommand(adminSecret string) []string {
	return redisCLI(adminSecret, "INFO", "memory")
}
