package mavlink

import (
	"fmt"
	"strconv"

	"github.com/c360/mavrouter/pkg/textenum"
)

// ComponentID identifies a component within a system (MAV_COMPONENT).
type ComponentID uint8

// Well-known component ids.
const (
	ComponentAll                    ComponentID = 0
	ComponentAutopilot1             ComponentID = 1
	ComponentTelemetryRadio         ComponentID = 68
	ComponentCamera                 ComponentID = 100
	ComponentCamera2                ComponentID = 101
	ComponentCamera3                ComponentID = 102
	ComponentCamera4                ComponentID = 103
	ComponentCamera5                ComponentID = 104
	ComponentCamera6                ComponentID = 105
	ComponentServo1                 ComponentID = 140
	ComponentGimbal                 ComponentID = 154
	ComponentLog                    ComponentID = 155
	ComponentADSB                   ComponentID = 156
	ComponentOSD                    ComponentID = 157
	ComponentPeripheral             ComponentID = 158
	ComponentFLARM                  ComponentID = 160
	ComponentParachute              ComponentID = 161
	ComponentGimbal2                ComponentID = 171
	ComponentBattery                ComponentID = 180
	ComponentBattery2               ComponentID = 181
	ComponentMissionPlanner         ComponentID = 190
	ComponentOnboardComputer        ComponentID = 191
	ComponentPathPlanner            ComponentID = 195
	ComponentObstacleAvoidance      ComponentID = 196
	ComponentVisualInertialOdometry ComponentID = 197
	ComponentPairingManager         ComponentID = 198
	ComponentIMU                    ComponentID = 200
	ComponentGPS                    ComponentID = 220
	ComponentGPS2                   ComponentID = 221
	ComponentUDPBridge              ComponentID = 240
	ComponentUARTBridge             ComponentID = 241
	ComponentTunnelNode             ComponentID = 242
	ComponentSystemControl          ComponentID = 250
)

var componentNames = textenum.New("component", map[ComponentID]string{
	ComponentAll:                    "ALL",
	ComponentAutopilot1:             "AUTOPILOT1",
	ComponentTelemetryRadio:         "TELEMETRY_RADIO",
	ComponentCamera:                 "CAMERA",
	ComponentCamera2:                "CAMERA2",
	ComponentCamera3:                "CAMERA3",
	ComponentCamera4:                "CAMERA4",
	ComponentCamera5:                "CAMERA5",
	ComponentCamera6:                "CAMERA6",
	ComponentServo1:                 "SERVO1",
	ComponentGimbal:                 "GIMBAL",
	ComponentLog:                    "LOG",
	ComponentADSB:                   "ADSB",
	ComponentOSD:                    "OSD",
	ComponentPeripheral:             "PERIPHERAL",
	ComponentFLARM:                  "FLARM",
	ComponentParachute:              "PARACHUTE",
	ComponentGimbal2:                "GIMBAL2",
	ComponentBattery:                "BATTERY",
	ComponentBattery2:               "BATTERY2",
	ComponentMissionPlanner:         "MISSIONPLANNER",
	ComponentOnboardComputer:        "ONBOARD_COMPUTER",
	ComponentPathPlanner:            "PATHPLANNER",
	ComponentObstacleAvoidance:      "OBSTACLE_AVOIDANCE",
	ComponentVisualInertialOdometry: "VISUAL_INERTIAL_ODOMETRY",
	ComponentPairingManager:         "PAIRING_MANAGER",
	ComponentIMU:                    "IMU",
	ComponentGPS:                    "GPS",
	ComponentGPS2:                   "GPS2",
	ComponentUDPBridge:              "UDP_BRIDGE",
	ComponentUARTBridge:             "UART_BRIDGE",
	ComponentTunnelNode:             "TUNNEL_NODE",
	ComponentSystemControl:          "SYSTEM_CONTROL",
})

// String returns the component name, or COMPONENT_<n> for ids without one.
func (c ComponentID) String() string {
	return componentNames.String(c, fmt.Sprintf("COMPONENT_%d", uint8(c)))
}

// ParseComponentID accepts a numeric id or a component name such as "AUTOPILOT1".
func ParseComponentID(s string) (ComponentID, error) {
	if n, err := strconv.ParseUint(s, 10, 8); err == nil {
		return ComponentID(n), nil
	}
	return componentNames.Parse(s)
}

// MarshalJSON writes the numeric id. It also keeps []ComponentID encoding as
// a number array instead of base64.
func (c ComponentID) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(c), 10), nil
}
