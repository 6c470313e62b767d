// Package tools defines the InsightFinder tool catalog.
//
// Five event categories (incidents, metric anomalies, log anomalies,
// deployments, traces) each expose three tools at increasing detail:
// overview, list, and details. Clients start cheap and drill down.
// list_all_systems discovers valid system names and get_server_time
// anchors millisecond time windows.
package tools
