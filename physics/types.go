package physics

import "github.com/go-gl/mathgl/mgl64"

// Engine-native object ids. Zero is never a valid id.
type (
	ActorID      uint32
	ShapeID      uint32
	JointID      uint32
	ControllerID uint32
)

// Pose is a rigid transform in world or actor-local space.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// IsIdentity reports whether p has no translation and no rotation.
func (p Pose) IsIdentity() bool {
	return p.Position == (mgl64.Vec3{}) && (p.Rotation == mgl64.QuatIdent() || p.Rotation == (mgl64.Quat{}))
}

type BodyKind uint8

const (
	BodyStatic BodyKind = iota
	BodyDynamic
	BodyKinematic
)

func (k BodyKind) String() string {
	switch k {
	case BodyStatic:
		return "static"
	case BodyDynamic:
		return "dynamic"
	case BodyKinematic:
		return "kinematic"
	default:
		return "unknown"
	}
}

type ShapeType uint8

const (
	ShapeBox ShapeType = iota
	ShapeSphere
	ShapeCapsule
	ShapeConvex
	ShapeTriangleMesh
	ShapeHeightField
	ShapePlane
)

func (t ShapeType) String() string {
	switch t {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	case ShapeCapsule:
		return "capsule"
	case ShapeConvex:
		return "convex"
	case ShapeTriangleMesh:
		return "triangle_mesh"
	case ShapeHeightField:
		return "heightfield"
	case ShapePlane:
		return "plane"
	default:
		return "unknown"
	}
}

type Axis uint8

const (
	AxisY Axis = iota
	AxisX
	AxisZ
)

// Material holds the surface coefficients of a shape.
type Material struct {
	Friction    float64
	Restitution float64
}

// FilterData is the per-shape collision filter. Layer is a single bit; two
// shapes collide when each one's CollideMask contains the other's Layer. A
// query issued from layer q hits a shape whose QueryMask contains q.
type FilterData struct {
	Layer       uint32
	CollideMask uint32
	QueryMask   uint32
}

type MeshData struct {
	Vertices []mgl64.Vec3
	Indices  []uint32
}

// HeightField is a row-major grid of height samples.
type HeightField struct {
	Rows        int
	Cols        int
	Heights     []float64
	HeightScale float64
	RowScale    float64
	ColScale    float64
}

type ShapeDesc struct {
	Type        ShapeType
	HalfExtents mgl64.Vec3
	Radius      float64
	HalfHeight  float64
	Axis        Axis
	// LocalPose places the shape relative to its actor.
	LocalPose   Pose
	Mesh        *MeshData
	MaxVertices int
	HeightField *HeightField
	Trigger     bool
	Material    Material
	Filter      FilterData
}

// BodyProps are rigid-body properties that can change without recreating the actor.
type BodyProps struct {
	Mass                   float64
	CenterOfMass           mgl64.Vec3
	LockRotation           bool
	Kinematic              bool
	DisableGravity         bool
	LinearDamping          float64
	AngularDamping         float64
	MaxLinearVelocity      float64
	MaxAngularVelocity     float64
	PositionIterations     uint32
	VelocityIterations     uint32
	SleepThreshold         float64
	StabilizationThreshold float64
}

type ActorDesc struct {
	Kind BodyKind
	Pose Pose
	Body BodyProps
	Tag  Tag
}

type JointType uint8

const (
	JointFixed JointType = iota
	JointRevolute
	JointPrismatic
	JointDistance
	JointSpherical
	JointSixAxis
)

func (t JointType) String() string {
	switch t {
	case JointFixed:
		return "fixed"
	case JointRevolute:
		return "revolute"
	case JointPrismatic:
		return "prismatic"
	case JointDistance:
		return "distance"
	case JointSpherical:
		return "spherical"
	case JointSixAxis:
		return "six_axis"
	default:
		return "unknown"
	}
}

type Limit struct {
	Enabled bool
	Lower   float64
	Upper   float64
}

type Drive struct {
	Enabled    bool
	Velocity   float64
	Stiffness  float64
	Damping    float64
	ForceLimit float64
}

type RevoluteSettings struct {
	Limit Limit
	Drive Drive
}

type PrismaticSettings struct {
	Axis  Axis
	Limit Limit
}

type DistanceSettings struct {
	MinEnabled    bool
	MaxEnabled    bool
	Min           float64
	Max           float64
	SpringEnabled bool
	Stiffness     float64
	Damping       float64
}

type SphericalSettings struct {
	LimitEnabled bool
	YAngle       float64
	ZAngle       float64
}

type Motion uint8

const (
	MotionLocked Motion = iota
	MotionLimited
	MotionFree
)

// Six-axis degrees of freedom, in the order used by SixAxisSettings arrays.
const (
	DOFX = iota
	DOFY
	DOFZ
	DOFTwist
	DOFSwing1
	DOFSwing2
	DOFCount
)

type SixAxisSettings struct {
	Motion      [DOFCount]Motion
	LinearLimit float64
	TwistLower  float64
	TwistUpper  float64
	Swing1Limit float64
	Swing2Limit float64
	Drives      [DOFCount]Drive
}

type JointDesc struct {
	Type JointType
	// ActorB zero means the joint is anchored to the world.
	ActorA           ActorID
	ActorB           ActorID
	AnchorA          mgl64.Vec3
	AnchorB          mgl64.Vec3
	Revolute         RevoluteSettings
	Prismatic        PrismaticSettings
	Distance         DistanceSettings
	Spherical        SphericalSettings
	SixAxis          SixAxisSettings
	BreakForce       float64
	BreakTorque      float64
	CollideConnected bool
	Tag              Tag
}

// ControllerDesc describes a capsule character controller. Position is the foot.
type ControllerDesc struct {
	Position      mgl64.Vec3
	Radius        float64
	Height        float64
	StepOffset    float64
	SlopeLimit    float64
	ContactOffset float64
	Filter        FilterData
	Tag           Tag
}

type CollisionFlags uint8

const (
	CollisionSides CollisionFlags = 1 << iota
	CollisionUp
	CollisionDown
)

// QueryFilter selects what a scene query may hit. Layer is the querier's layer bit.
type QueryFilter struct {
	Layer             uint32
	ExcludeController ControllerID
	ExcludeActor      ActorID
}

type RaycastHit struct {
	Actor    ActorID
	Tag      Tag
	Position mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

// ActiveTransform is one entry of the per-step list of bodies the engine moved.
type ActiveTransform struct {
	Actor ActorID
	Tag   Tag
	Pose  Pose
}

type EventKind uint8

const (
	EventContactBegin EventKind = iota
	EventContactEnd
	EventTriggerEnter
	EventTriggerExit
	EventJointBroken
)

func (k EventKind) String() string {
	switch k {
	case EventContactBegin:
		return "contact_begin"
	case EventContactEnd:
		return "contact_end"
	case EventTriggerEnter:
		return "trigger_enter"
	case EventTriggerExit:
		return "trigger_exit"
	case EventJointBroken:
		return "joint_broken"
	default:
		return "unknown"
	}
}

// Event is an engine notification. The bridge only decodes the tags; the rest
// of the payload is forwarded untouched.
type Event struct {
	Kind     EventKind
	TagA     Tag
	TagB     Tag
	Joint    JointID
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Impulse  float64
	Userdata any
}

type Capabilities struct {
	MeshCooking          bool
	CharacterControllers bool
	HeightFields         bool
	MaxConvexVertices    int
}
