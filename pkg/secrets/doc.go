/*
Package secrets implements WaffleMaker's secret lifecycle: SecretStore, the
narrow contract against an external secret store (§6), and SecretResolver,
which turns a service's declared ServiceSpec.secrets and dependencies into a
concrete environment map plus the leases issued along the way (§4.4).

VaultStore implements SecretStore against HashiCorp Vault via
hashicorp/vault/api: KV reads/writes under services/<id>/*, dynamic
credential issuance under database/creds/<role> and aws/creds/<role>, and
lease renew/revoke.

Secret materialization is the only place in the system that draws on a
CSPRNG; it is isolated behind the RandomSource interface so tests can supply
a deterministic source.
*/
package secrets
