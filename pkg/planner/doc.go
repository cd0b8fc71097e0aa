/*
Package planner turns a git commit range into an ordered list of jobs
(§4.1, §4.2).

Plan diffs the tree between the Registry's last-recorded commit and the
repository's current HEAD, restricted to the services/ subtree. Deleted
service files become Delete jobs; modified or added files are parsed
into a ServiceSpec and become Reconcile jobs, or Fail jobs if parsing
fails. The returned job list always orders deletes before reconciles,
and lexicographically by service id within each group, so a service
rename (delete old id, add new id) never races.

An empty last-recorded commit is treated as a full reconcile: every
service file at HEAD is planned as if newly added. A HEAD equal to the
last-recorded commit produces no jobs at all.
*/
package planner
