// Package monitor defines the domain types shared by the monitoring subsystems:
// vendor integrations, plants, the browser capability consumed by site workflows,
// notifications, anomaly reports, and monthly metrics records.
package monitor
