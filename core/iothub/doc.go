// Package iothub implements the Azure-style IoT Hub provider integration.
//
// The Client interface is the capability set the sync engine requires from
// any hub provider: query device twins, create/update devices, flip their
// provisioning status, and delete them. Adding another provider means
// adding another implementation of this interface and registering it for
// the new provider constant; the engine itself stays untouched.
//
// Requests are authorized with SharedAccessSignature tokens derived from
// the integration's connection string (see ConnectionString.Authorization).
package iothub
